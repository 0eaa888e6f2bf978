package conversation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"caravan/internal/action"
	"caravan/internal/gateway"
	"caravan/internal/i18n"
	"caravan/internal/modules/geo"
)

var ErrUnknownFlow = errors.New("unknown flow")

// Machine is the pure transition function over SessionState. It reads the geo catalog and
// the clock and performs no I/O.
type Machine struct {
	geo *geo.Catalog
	now func() time.Time
}

func NewMachine(catalog *geo.Catalog, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{geo: catalog, now: now}
}

// Start opens a session at the first step of flow. preset seeds the draft.
func (m *Machine) Start(flow FlowID, lang, submissionKey string, preset Draft) (SessionState, []Effect, error) {
	f, ok := Lookup(flow)
	if !ok {
		return SessionState{}, nil, ErrUnknownFlow
	}
	draft := Draft{}
	for k, v := range preset {
		draft[k] = v
	}
	s := SessionState{
		Flow:          flow,
		Sub:           firstSub(f.Steps[0]),
		Draft:         draft,
		SubmissionKey: submissionKey,
		Lang:          lang,
		StartedAt:     m.now().UTC(),
	}
	return s, []Effect{m.prompt(f, s, "")}, nil
}

func firstSub(st Step) Sub {
	switch st.Kind {
	case StepLocation:
		return SubCountry
	case StepDate:
		return SubYear
	}
	return SubNone
}

// Transition advances s by one input. On a validation failure the returned state equals s
// and the single effect re-prompts the same step with an error.
func (m *Machine) Transition(s SessionState, in Input) (SessionState, []Effect) {
	f, ok := Lookup(s.Flow)
	if !ok || s.Step < 0 || s.Step >= len(f.Steps) {
		return SessionState{}, []Effect{End{}}
	}
	switch {
	case in.pressed(action.Cancel):
		return SessionState{}, []Effect{End{}}
	case in.pressed(action.Back):
		return m.back(f, s)
	}

	next := s.clone()
	r := m.apply(f, &next, in)
	if r.err != "" {
		return s, []Effect{m.prompt(f, s, r.err)}
	}
	if r.submit {
		return s, []Effect{Submit{Flow: s.Flow, Draft: s.Draft.clone(), SubmissionKey: s.SubmissionKey}}
	}
	if r.advance {
		next.Step++
		if next.Step >= len(f.Steps) {
			return next, []Effect{Submit{Flow: next.Flow, Draft: next.Draft.clone(), SubmissionKey: next.SubmissionKey}}
		}
		next.Sub = firstSub(f.Steps[next.Step])
	}
	return next, []Effect{m.prompt(f, next, "")}
}

type result struct {
	advance bool
	submit  bool
	err     string
}

func invalid(key string) result { return result{err: key} }

var advance = result{advance: true}

func (m *Machine) apply(f Flow, s *SessionState, in Input) result {
	st := f.Steps[s.Step]
	switch st.Kind {
	case StepText:
		if st.Optional && in.pressed(action.Skip) && in.Action.Arg == st.Field {
			s.Draft[st.Field] = ""
			return advance
		}
		text, key := textValue(in, st.MaxLen)
		if key != "" {
			return invalid(key)
		}
		s.Draft[st.Field] = text
		return advance
	case StepPhone:
		raw := in.Text
		if in.Kind == gateway.EventContact {
			raw = in.Phone
		} else if in.Kind != gateway.EventText {
			return invalid("err.phone")
		}
		p, ok := NormalizePhone(raw)
		if !ok {
			return invalid("err.phone")
		}
		s.Draft[st.Field] = p
		return advance
	case StepInt:
		raw := in.Text
		if in.pressed(action.Choose) {
			raw = in.Action.Arg
		} else if in.Kind != gateway.EventText {
			return invalid("err.number")
		}
		n, ok := parseInt(raw, st.Min, st.Max)
		if !ok {
			return invalid("err.number")
		}
		s.Draft[st.Field] = strconv.Itoa(n)
		return advance
	case StepPhoto:
		if in.Kind != gateway.EventPhoto || in.FileRef == "" {
			return invalid("err.photo")
		}
		s.Draft[st.Field] = in.FileRef
		return advance
	case StepChoice:
		if !in.pressed(action.Choose) || !contains(st.Choices, in.Action.Arg) {
			return invalid("err.choice")
		}
		s.Draft[st.Field] = in.Action.Arg
		return advance
	case StepLocation:
		return m.location(st.Field, s, in)
	case StepDate:
		return m.date(st.Field, s, in)
	case StepConfirm:
		if !in.pressed(action.Confirm) || in.Action.Arg != string(f.ID) {
			return invalid("err.confirm")
		}
		return result{submit: true}
	}
	return invalid("err.choice")
}

func textValue(in Input, maxLen int) (string, string) {
	if in.Kind != gateway.EventText {
		return "", "err.text"
	}
	t := strings.TrimSpace(in.Text)
	if t == "" {
		return "", "err.text"
	}
	if maxLen > 0 && utf8.RuneCountInString(t) > maxLen {
		return "", "err.toolong"
	}
	return t, ""
}

func (m *Machine) location(field string, s *SessionState, in Input) result {
	key := func(part string) string { return field + "." + part }
	switch s.Sub {
	case SubCountry:
		if !in.pressed(action.Country) {
			return invalid("err.choice")
		}
		co, ok := m.geo.Country(in.Action.Arg)
		if !ok {
			return invalid("err.choice")
		}
		s.Draft[key("country")] = co.Code
		delete(s.Draft, key("region"))
		delete(s.Draft, key("city"))
		s.Sub = SubRegion
		if len(co.Regions) == 0 {
			s.Sub = SubManual
		}
		return result{}
	case SubRegion:
		if in.pressed(action.ManualCity) {
			s.Sub = SubManual
			return result{}
		}
		if !in.pressed(action.Region) {
			return invalid("err.choice")
		}
		if _, ok := m.geo.Region(s.Draft[key("country")], in.Action.Arg); !ok {
			return invalid("err.choice")
		}
		s.Draft[key("region")] = in.Action.Arg
		delete(s.Draft, key("city"))
		s.Sub = SubCity
		return result{}
	case SubCity:
		if in.pressed(action.ManualCity) {
			s.Sub = SubManual
			return result{}
		}
		if !in.pressed(action.City) {
			return invalid("err.choice")
		}
		if _, ok := m.geo.City(s.Draft[key("country")], s.Draft[key("region")], in.Action.Arg); !ok {
			return invalid("err.choice")
		}
		s.Draft[key("city")] = in.Action.Arg
		return advance
	case SubManual:
		text, errKey := textValue(in, 100)
		if errKey != "" {
			return invalid(errKey)
		}
		s.Draft[key("city")] = text
		return advance
	}
	return invalid("err.choice")
}

func (m *Machine) date(field string, s *SessionState, in Input) result {
	now := m.now()
	if in.Kind == gateway.EventText {
		t, errKey := parseTravelDate(in.Text, now)
		if errKey != "" {
			return invalid(errKey)
		}
		m.setDate(field, s, t)
		return advance
	}
	switch s.Sub {
	case SubYear:
		if !in.pressed(action.Year) {
			return invalid("err.choice")
		}
		y, err := strconv.Atoi(in.Action.Arg)
		if err != nil || y < now.Year() || y > now.Year()+1 {
			return invalid("err.date.past")
		}
		s.Draft[field+".year"] = in.Action.Arg
		s.Sub = SubMonth
		return result{}
	case SubMonth:
		if !in.pressed(action.Month) {
			return invalid("err.choice")
		}
		t, err := time.Parse("2006-01", in.Action.Arg)
		if err != nil {
			return invalid("err.choice")
		}
		if strconv.Itoa(t.Year()) != s.Draft[field+".year"] {
			return invalid("err.choice")
		}
		if t.Before(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)) {
			return invalid("err.date.past")
		}
		s.Draft[field+".month"] = in.Action.Arg
		s.Sub = SubDay
		return result{}
	case SubDay:
		if !in.pressed(action.Day) {
			return invalid("err.choice")
		}
		t, err := time.Parse("2006-01-02", in.Action.Arg)
		if err != nil || t.Format("2006-01") != s.Draft[field+".month"] {
			return invalid("err.choice")
		}
		if t.Before(day(now)) {
			return invalid("err.date.past")
		}
		m.setDate(field, s, t)
		return advance
	}
	return invalid("err.choice")
}

func (m *Machine) setDate(field string, s *SessionState, t time.Time) {
	s.Draft[field] = t.Format(DateLayout)
	delete(s.Draft, field+".year")
	delete(s.Draft, field+".month")
}

// back steps out of a sub-step, or to the previous step. Values already entered stay in
// the draft. Going back from the first step ends the session.
func (m *Machine) back(f Flow, s SessionState) (SessionState, []Effect) {
	next := s.clone()
	st := f.Steps[s.Step]
	switch {
	case st.Kind == StepLocation && s.Sub == SubRegion:
		next.Sub = SubCountry
	case st.Kind == StepLocation && s.Sub == SubCity:
		next.Sub = SubRegion
	case st.Kind == StepLocation && s.Sub == SubManual:
		next.Sub = SubCountry
		if co, ok := m.geo.Country(s.Draft[st.Field+".country"]); ok && len(co.Regions) > 0 {
			next.Sub = SubRegion
		}
	case st.Kind == StepDate && s.Sub == SubMonth:
		next.Sub = SubYear
	case st.Kind == StepDate && s.Sub == SubDay:
		next.Sub = SubMonth
	default:
		if s.Step == 0 {
			return SessionState{}, []Effect{End{}}
		}
		next.Step--
		next.Sub = firstSub(f.Steps[next.Step])
	}
	return next, []Effect{m.prompt(f, next, "")}
}

// Prompt renders the prompt of the current step without changing anything.
func (m *Machine) Prompt(s SessionState) (Prompt, bool) {
	f, ok := Lookup(s.Flow)
	if !ok || s.Step < 0 || s.Step >= len(f.Steps) {
		return Prompt{}, false
	}
	return m.prompt(f, s, ""), true
}

func (m *Machine) prompt(f Flow, s SessionState, errKey string) Prompt {
	st := f.Steps[s.Step]
	p := Prompt{Key: "prompt." + st.Field, Error: errKey}
	var rows [][]Button
	switch st.Kind {
	case StepText:
		if st.Optional {
			rows = append(rows, []Button{{Key: "btn.skip", Action: action.New(action.Skip, st.Field)}})
		}
	case StepInt:
		var row []Button
		for _, q := range st.Quick {
			row = append(row, Button{Label: q, Action: action.New(action.Choose, q)})
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	case StepChoice:
		for _, c := range st.Choices {
			rows = append(rows, []Button{{Key: "choice." + st.Field + "." + c, Action: action.New(action.Choose, c)}})
		}
	case StepLocation:
		p.Key = "prompt." + st.Field + "." + string(s.Sub)
		rows = m.locationButtons(st.Field, s)
	case StepDate:
		p.Key = "prompt." + st.Field + "." + string(s.Sub)
		var params i18n.Params
		rows, params = m.dateButtons(st.Field, s)
		p.Params = params
	case StepConfirm:
		p.Summary = true
		rows = append(rows, []Button{{Key: "btn.confirm", Action: action.New(action.Confirm, string(f.ID))}})
	}
	rows = append(rows, []Button{
		{Key: "btn.back", Action: action.New(action.Back, "")},
		{Key: "btn.cancel", Action: action.New(action.Cancel, "")},
	})
	p.Buttons = rows
	return p
}

func (m *Machine) locationButtons(field string, s SessionState) [][]Button {
	lang, fallback := s.Lang, m.geo.Fallback()
	country := s.Draft[field+".country"]
	var buttons []Button
	manual := false
	switch s.Sub {
	case SubCountry:
		for _, co := range m.geo.Countries {
			buttons = append(buttons, Button{Label: co.Names.In(lang, fallback), Action: action.New(action.Country, co.Code)})
		}
	case SubRegion:
		if co, ok := m.geo.Country(country); ok {
			for _, r := range co.Regions {
				buttons = append(buttons, Button{Label: r.Names.In(lang, fallback), Action: action.New(action.Region, r.Code)})
			}
		}
		manual = true
	case SubCity:
		if r, ok := m.geo.Region(country, s.Draft[field+".region"]); ok {
			for _, c := range r.Cities {
				buttons = append(buttons, Button{Label: c.Names.In(lang, fallback), Action: action.New(action.City, c.Code)})
			}
		}
		manual = true
	}
	rows := chunk(buttons, 2)
	if manual {
		rows = append(rows, []Button{{Key: "btn.manualcity", Action: action.New(action.ManualCity, "")}})
	}
	return rows
}

func (m *Machine) dateButtons(field string, s SessionState) ([][]Button, i18n.Params) {
	now := m.now()
	switch s.Sub {
	case SubYear:
		var row []Button
		for y := now.Year(); y <= now.Year()+1; y++ {
			v := strconv.Itoa(y)
			row = append(row, Button{Label: v, Action: action.New(action.Year, v)})
		}
		return [][]Button{row}, nil
	case SubMonth:
		year, _ := strconv.Atoi(s.Draft[field+".year"])
		from := time.January
		if year == now.Year() {
			from = now.Month()
		}
		var buttons []Button
		for mo := from; mo <= time.December; mo++ {
			buttons = append(buttons, Button{
				Key:    fmt.Sprintf("month.%d", int(mo)),
				Action: action.New(action.Month, fmt.Sprintf("%04d-%02d", year, int(mo))),
			})
		}
		return chunk(buttons, 3), i18n.Params{"year": year}
	case SubDay:
		t, err := time.Parse("2006-01", s.Draft[field+".month"])
		if err != nil {
			return nil, nil
		}
		first := 1
		if t.Year() == now.Year() && t.Month() == now.Month() {
			first = now.Day()
		}
		last := t.AddDate(0, 1, -1).Day()
		var buttons []Button
		for d := first; d <= last; d++ {
			buttons = append(buttons, Button{
				Label:  strconv.Itoa(d),
				Action: action.New(action.Day, fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), d)),
			})
		}
		return chunk(buttons, 7), i18n.Params{"month": t.Format("01.2006")}
	}
	return nil, nil
}

func chunk(buttons []Button, size int) [][]Button {
	var rows [][]Button
	for len(buttons) > 0 {
		n := size
		if len(buttons) < n {
			n = len(buttons)
		}
		rows = append(rows, buttons[:n])
		buttons = buttons[n:]
	}
	return rows
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
