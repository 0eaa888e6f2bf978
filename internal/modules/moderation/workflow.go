// README: Moderation workflow: submit, approve, reject and reply for every moderated kind.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"caravan/internal/action"
	"caravan/internal/events"
	"caravan/internal/gateway"
	"caravan/internal/i18n"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/order"
	"caravan/internal/modules/user"
	"caravan/internal/notify"
	"caravan/internal/render"
	"caravan/internal/types"
)

type Repository interface {
	CreateApplication(ctx context.Context, a *DriverApplication) (*DriverApplication, bool, error)
	GetApplication(ctx context.Context, id types.ID) (*DriverApplication, error)
	PendingApplications(ctx context.Context, limit int) ([]DriverApplication, error)
	ApproveApplication(ctx context.Context, id types.ID, moderator types.UserID) (*DriverApplication, error)
	RejectApplication(ctx context.Context, id types.ID, moderator types.UserID, reason string) (*DriverApplication, error)

	CreateTopUp(ctx context.Context, t *TopUpRequest) (*TopUpRequest, bool, error)
	GetTopUp(ctx context.Context, id types.ID) (*TopUpRequest, error)
	PendingTopUps(ctx context.Context, limit int) ([]TopUpRequest, error)
	ApproveTopUp(ctx context.Context, id types.ID, moderator types.UserID) (*TopUpRequest, *ledger.Entry, error)
	RejectTopUp(ctx context.Context, id types.ID, moderator types.UserID, reason string) (*TopUpRequest, error)
}

type Users interface {
	Get(ctx context.Context, id types.UserID) (*user.User, error)
}

// Tickets is implemented by *order.Service.
type Tickets interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	Resolve(ctx context.Context, cmd order.ResolveCommand) (*order.Order, error)
}

// Journal is implemented by *ledger.Service.
type Journal interface {
	Announce(ctx context.Context, e ledger.Entry)
}

// photo is a labelled document attached to a request.
type photo struct {
	Label   string
	FileRef string
}

// view is a loaded request with what is needed to render it.
type view struct {
	Request
	Card   func(lang string) string
	Photos []photo
	// Params feed the submitter's resolution notice.
	Params i18n.Params
}

// handler binds one kind to its store operations and side effects.
type handler struct {
	load    func(ctx context.Context, id types.ID) (view, error)
	approve func(ctx context.Context, id types.ID, moderator types.UserID) (view, error)
	reject  func(ctx context.Context, id types.ID, moderator types.UserID, reason string) (view, error)
	// replies reports whether moderators may answer the submitter in free text.
	replies bool
}

type Workflow struct {
	store    Repository
	users    Users
	tickets  Tickets
	journal  Journal
	notify   *notify.Notifier
	render   *render.Renderer
	events   events.Publisher
	log      *slog.Logger
	handlers map[Kind]handler
}

func NewWorkflow(store Repository, users Users, tickets Tickets, journal Journal, n *notify.Notifier, r *render.Renderer, pub events.Publisher, log *slog.Logger) *Workflow {
	w := &Workflow{
		store:   store,
		users:   users,
		tickets: tickets,
		journal: journal,
		notify:  n,
		render:  r,
		events:  pub,
		log:     log.With(slog.String("component", "moderation")),
	}
	w.handlers = map[Kind]handler{
		KindDriverApplication: w.applicationHandler(),
		KindTopUp:             w.topUpHandler(),
		KindTicket:            w.ticketHandler(),
	}
	return w
}

type ApplicationCommand struct {
	SubmissionKey string
	ApplicantID   types.UserID
	Direction     string
	FullName      string
	Phone         string
	PassportPhoto string
	STSPhoto      string
	LicensePhoto  string
	CarModel      string
	CarNumber     string
	CarYear       int
	Capacity      int
	CarPhoto      string
}

type TopUpCommand struct {
	SubmissionKey string
	DriverID      types.UserID
	Amount        int64
	ProofRef      string
}

// Decision resolves one request. Card is the moderation card to update, if known.
type Decision struct {
	Kind        Kind
	ID          types.ID
	ModeratorID types.UserID
	Reason      string
	Card        types.MessageRef
}

type ReplyCommand struct {
	Kind        Kind
	ID          types.ID
	ModeratorID types.UserID
	Text        string
}

// SubmitApplication stores a pending driver application and posts it to moderators.
// A repeated submission key returns the first application with created=false.
func (w *Workflow) SubmitApplication(ctx context.Context, cmd ApplicationCommand) (*DriverApplication, bool, error) {
	if err := validateApplication(cmd); err != nil {
		return nil, false, err
	}
	u, err := w.users.Get(ctx, cmd.ApplicantID)
	if err != nil {
		return nil, false, err
	}
	if u.Role == user.RoleDriver {
		return nil, false, ErrAlreadyDriver
	}
	a, created, err := w.store.CreateApplication(ctx, &DriverApplication{
		ID:            types.NewID(),
		SubmissionKey: cmd.SubmissionKey,
		ApplicantID:   cmd.ApplicantID,
		Direction:     cmd.Direction,
		FullName:      strings.TrimSpace(cmd.FullName),
		Phone:         cmd.Phone,
		PassportPhoto: cmd.PassportPhoto,
		STSPhoto:      cmd.STSPhoto,
		LicensePhoto:  cmd.LicensePhoto,
		CarModel:      strings.TrimSpace(cmd.CarModel),
		CarNumber:     strings.ToUpper(strings.TrimSpace(cmd.CarNumber)),
		CarYear:       cmd.CarYear,
		Capacity:      cmd.Capacity,
		CarPhoto:      cmd.CarPhoto,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("create application: %w", err)
	}
	if created {
		w.announce(ctx, w.applicationView(a), "")
	}
	return a, created, nil
}

func validateApplication(cmd ApplicationCommand) error {
	if cmd.SubmissionKey == "" || cmd.ApplicantID == 0 {
		return ErrBadRequest
	}
	if cmd.Direction != DirectionTaxi && cmd.Direction != DirectionCargo {
		return ErrBadRequest
	}
	for _, s := range []string{cmd.FullName, cmd.Phone, cmd.CarModel, cmd.CarNumber} {
		if strings.TrimSpace(s) == "" {
			return ErrBadRequest
		}
	}
	for _, p := range []string{cmd.PassportPhoto, cmd.STSPhoto, cmd.LicensePhoto, cmd.CarPhoto} {
		if p == "" {
			return ErrBadRequest
		}
	}
	if cmd.CarYear < 1950 || cmd.Capacity < 1 {
		return ErrBadRequest
	}
	return nil
}

// SubmitTopUp stores a pending ball top-up for a driver and posts the proof to moderators.
func (w *Workflow) SubmitTopUp(ctx context.Context, cmd TopUpCommand) (*TopUpRequest, bool, error) {
	if cmd.SubmissionKey == "" || cmd.Amount < 1 || cmd.ProofRef == "" {
		return nil, false, ErrBadRequest
	}
	u, err := w.users.Get(ctx, cmd.DriverID)
	if err != nil {
		return nil, false, err
	}
	if u.Role != user.RoleDriver {
		return nil, false, ErrNotDriver
	}
	t, created, err := w.store.CreateTopUp(ctx, &TopUpRequest{
		ID:            types.NewID(),
		SubmissionKey: cmd.SubmissionKey,
		DriverID:      cmd.DriverID,
		Amount:        cmd.Amount,
		ProofRef:      cmd.ProofRef,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("create topup: %w", err)
	}
	if created {
		w.announce(ctx, w.topUpView(t, u), t.ProofRef)
	}
	return t, created, nil
}

// SubmitTicket posts an already created ticket order to moderators.
func (w *Workflow) SubmitTicket(ctx context.Context, o *order.Order) error {
	if !o.Category.Ticket() {
		return ErrBadRequest
	}
	w.announce(ctx, w.ticketView(o), o.Payload.PassportPhoto)
	return nil
}

// Get loads the kind-independent view of a request.
func (w *Workflow) Get(ctx context.Context, kind Kind, id types.ID) (Request, error) {
	h, ok := w.handlers[kind]
	if !ok {
		return Request{}, ErrUnknownKind
	}
	v, err := h.load(ctx, id)
	if err != nil {
		return Request{}, err
	}
	return v.Request, nil
}

// Authorize fails with ErrPermission unless the user is an admin.
func (w *Workflow) Authorize(ctx context.Context, moderator types.UserID) (*user.User, error) {
	u, err := w.users.Get(ctx, moderator)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrPermission
	}
	if err != nil {
		return nil, err
	}
	if u.Role != user.RoleAdmin {
		return nil, ErrPermission
	}
	return u, nil
}

// Approve moves a pending request to approved and applies its effect in the same commit.
// Acting on a resolved request fails with ErrAlreadyResolved and changes nothing.
func (w *Workflow) Approve(ctx context.Context, d Decision) (Request, error) {
	h, ok := w.handlers[d.Kind]
	if !ok {
		return Request{}, ErrUnknownKind
	}
	if _, err := w.Authorize(ctx, d.ModeratorID); err != nil {
		return Request{}, err
	}
	v, err := h.approve(ctx, d.ID, d.ModeratorID)
	if err != nil {
		return Request{}, err
	}
	w.resolved(ctx, v, d)
	return v.Request, nil
}

// Reject moves a pending request to rejected. The reason is shown to the submitter.
func (w *Workflow) Reject(ctx context.Context, d Decision) (Request, error) {
	h, ok := w.handlers[d.Kind]
	if !ok {
		return Request{}, ErrUnknownKind
	}
	d.Reason = strings.TrimSpace(d.Reason)
	if d.Reason == "" {
		return Request{}, ErrBadRequest
	}
	if _, err := w.Authorize(ctx, d.ModeratorID); err != nil {
		return Request{}, err
	}
	v, err := h.reject(ctx, d.ID, d.ModeratorID, d.Reason)
	if err != nil {
		return Request{}, err
	}
	w.resolved(ctx, v, d)
	return v.Request, nil
}

// Reply sends free text to the submitter of a request without resolving it.
func (w *Workflow) Reply(ctx context.Context, cmd ReplyCommand) error {
	h, ok := w.handlers[cmd.Kind]
	if !ok {
		return ErrUnknownKind
	}
	if !h.replies {
		return ErrBadRequest
	}
	cmd.Text = strings.TrimSpace(cmd.Text)
	if cmd.Text == "" {
		return ErrBadRequest
	}
	if _, err := w.Authorize(ctx, cmd.ModeratorID); err != nil {
		return err
	}
	v, err := h.load(ctx, cmd.ID)
	if err != nil {
		return err
	}
	lang := w.languageOf(ctx, v.Submitter)
	text := w.render.T(lang, "notify.reply", i18n.Params{"text": cmd.Text})
	w.notify.Send(ctx, v.Submitter.Chat(), text, nil, w.subject(v.Request))
	return nil
}

// View re-sends the full record, documents included, to the moderator's private chat.
func (w *Workflow) View(ctx context.Context, kind Kind, id types.ID, moderator types.UserID) error {
	h, ok := w.handlers[kind]
	if !ok {
		return ErrUnknownKind
	}
	mod, err := w.Authorize(ctx, moderator)
	if err != nil {
		return err
	}
	v, err := h.load(ctx, id)
	if err != nil {
		return err
	}
	chat := mod.ID.Chat()
	subject := w.subject(v.Request)
	text := v.Card(mod.Language) + "\n\n" + w.render.Status(mod.Language, order.Status(v.Status))
	w.notify.Send(ctx, chat, text, nil, subject)
	for _, p := range v.Photos {
		if p.FileRef == "" {
			continue
		}
		w.notify.Photo(ctx, chat, p.FileRef, w.render.T(mod.Language, p.Label, nil), nil, subject)
	}
	return nil
}

func (w *Workflow) PendingApplications(ctx context.Context, limit int) ([]DriverApplication, error) {
	if limit <= 0 {
		limit = 20
	}
	return w.store.PendingApplications(ctx, limit)
}

func (w *Workflow) PendingTopUps(ctx context.Context, limit int) ([]TopUpRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	return w.store.PendingTopUps(ctx, limit)
}

// announce posts the moderation card with its actions to the admin channel.
func (w *Workflow) announce(ctx context.Context, v view, fileRef string) {
	lang := w.render.Texts().Default()
	kind := string(v.Kind)
	id := string(v.ID)
	kb := gateway.Keyboard{
		gateway.Row(gateway.Btn(w.render.T(lang, "btn.view", nil), action.NewKind(action.View, kind, id))),
		gateway.Row(
			gateway.Btn(w.render.T(lang, "btn.approve", nil), action.NewKind(action.Approve, kind, id)),
			gateway.Btn(w.render.T(lang, "btn.reject", nil), action.NewKind(action.Reject, kind, id)),
		),
	}
	if w.handlers[v.Kind].replies {
		kb = append(kb, gateway.Row(gateway.Btn(w.render.T(lang, "btn.reply", nil), action.NewKind(action.Reply, kind, id))))
	}
	w.notify.Photo(ctx, w.notify.Admin(), fileRef, v.Card(lang), kb, w.subject(v.Request))
	w.publish(ctx, events.RequestSubmitted, v.Request, v.Submitter, 0)
}

// resolved runs after commit: update the card, tell the submitter, emit the event.
func (w *Workflow) resolved(ctx context.Context, v view, d Decision) {
	lang := w.render.Texts().Default()
	mod := i18n.Params{"moderator": d.ModeratorID.String(), "reason": v.Reason}
	w.notify.Edit(ctx, d.Card, v.Card(lang)+"\n\n"+w.render.T(lang, "mod.resolved."+string(v.Status), mod), nil)

	sub := w.languageOf(ctx, v.Submitter)
	params := i18n.Params{"reason": v.Reason}
	for k, val := range v.Params {
		params[k] = val
	}
	text := w.render.T(sub, "notify."+string(v.Kind)+"."+string(v.Status), params)
	w.notify.Send(ctx, v.Submitter.Chat(), text, nil, w.subject(v.Request))

	t := events.RequestApproved
	if v.Status == StatusRejected {
		t = events.RequestRejected
	}
	var amount int64
	if a, ok := v.Params["amount"].(int64); ok {
		amount = a
	}
	w.publish(ctx, t, v.Request, d.ModeratorID, amount)
	w.log.Info("request resolved",
		slog.String("kind", string(v.Kind)),
		slog.String("id", string(v.ID)),
		slog.String("status", string(v.Status)),
		slog.Int64("moderator", int64(d.ModeratorID)))
}

func (w *Workflow) languageOf(ctx context.Context, id types.UserID) string {
	u, err := w.users.Get(ctx, id)
	if err != nil || u.Language == "" {
		return w.render.Texts().Default()
	}
	return u.Language
}

func (w *Workflow) subject(r Request) string {
	return string(r.Kind) + " " + string(r.ID)
}

func (w *Workflow) publish(ctx context.Context, t events.Type, r Request, actor types.UserID, amount int64) {
	err := w.events.Publish(ctx, events.Event{
		Type:      t,
		SubjectID: string(r.ID),
		Kind:      string(r.Kind),
		ActorID:   int64(actor),
		To:        string(r.Status),
		Amount:    amount,
		At:        time.Now().UTC(),
	})
	if err != nil {
		w.log.Warn("publish moderation event", slog.String("id", string(r.ID)), slog.Any("err", err))
	}
}
