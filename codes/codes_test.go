package codes

import "testing"

func TestStringKnownCodes(t *testing.T) {
	cases := map[Code]string{
		OK:              "OK",
		Unavailable:     "UNAVAILABLE",
		Unauthenticated: "UNAUTHENTICATED",
		DataLoss:        "DATA_LOSS",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}

func TestStringUnknownCode(t *testing.T) {
	if got, want := Code(99).String(), "CODE(99)"; got != want {
		t.Errorf("Code(99).String() = %q, want %q", got, want)
	}
}

func TestParseNameRoundTrip(t *testing.T) {
	for code := OK; code <= Unauthenticated; code++ {
		name := code.String()
		got, ok := ParseName(name)
		if !ok {
			t.Fatalf("ParseName(%q) not found", name)
		}
		if got != code {
			t.Errorf("ParseName(%q) = %d, want %d", name, got, code)
		}
	}
}

func TestParseNameCaseInsensitive(t *testing.T) {
	got, ok := ParseName("unavailable")
	if !ok || got != Unavailable {
		t.Errorf("ParseName(\"unavailable\") = (%d, %v), want (%d, true)", got, ok, Unavailable)
	}
}

func TestParseNameUnknown(t *testing.T) {
	if _, ok := ParseName("NOT_A_CODE"); ok {
		t.Error("ParseName(\"NOT_A_CODE\") should not be found")
	}
}
