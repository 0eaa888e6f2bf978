package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	a := map[string]string{"phone": "+998901234567", "full_name": "Ali", "comment": ""}
	b := map[string]string{"comment": "", "full_name": "Ali", "phone": "+998901234567"}

	ea, err := Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	eb, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ea, eb) {
		t.Fatalf("encodings differ")
	}

	var got map[string]string
	if err := Unmarshal(ea, &got); err != nil {
		t.Fatal(err)
	}
	if got["full_name"] != "Ali" || len(got) != 3 {
		t.Fatalf("decoded %v", got)
	}
}
