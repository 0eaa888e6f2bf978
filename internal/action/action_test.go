package action

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Action
	}{
		{"accept_taxi_42", Action{Verb: Accept, Kind: KindTaxi, Arg: "42"}},
		{"lang_ru", Action{Verb: Lang, Arg: "ru"}},
		{"day_2025-07-14", Action{Verb: Day, Arg: "2025-07-14"}},
		{"back", Action{Verb: Back}},
		{"approve_topup_0b7a4f5e-4a4f-4c53-9e8c-2c1f9a1e0e11", Action{Verb: Approve, Kind: KindTopUp, Arg: "0b7a4f5e-4a4f-4c53-9e8c-2c1f9a1e0e11"}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
		if got.String() != tc.in {
			t.Errorf("String() = %q, want %q", got.String(), tc.in)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	for _, in := range []string{"", "_ru", "accept__42", string(long)} {
		if _, err := Parse(in); err != ErrMalformed {
			t.Errorf("Parse(%q) err = %v, want ErrMalformed", in, err)
		}
	}
}
