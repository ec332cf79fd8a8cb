package intent

import "testing"

func TestClassifyContactWithConfirmation(t *testing.T) {
	m := NewPatternMatcher()
	res := m.Classify(Input{Text: "Yes! Andi, +62 812 3456 7890, Jalan Melati No. 5"})
	if res.Intent != IntentProvideContact {
		t.Fatalf("expected provide_contact, got %s", res.Intent)
	}
	if res.Confidence < 0.95 {
		t.Fatalf("expected strong confidence, got %.2f", res.Confidence)
	}
	if res.Contact.Phone == "" {
		t.Fatal("expected phone extracted")
	}
	if res.Contact.Address == "" {
		t.Fatal("expected address extracted")
	}
}

func TestClassifyEmailAlone(t *testing.T) {
	m := NewPatternMatcher()
	res := m.Classify(Input{Text: "andi@example.com"})
	if res.Intent != IntentProvideContact {
		t.Fatalf("expected provide_contact, got %s", res.Intent)
	}
	if res.Contact.Email != "andi@example.com" {
		t.Fatalf("unexpected email %q", res.Contact.Email)
	}
}

func TestClassifyBareWords(t *testing.T) {
	m := NewPatternMatcher()
	cases := []struct {
		text string
		want string
	}{
		{"yes", IntentConfirm},
		{"Iya.", IntentConfirm},
		{"no", IntentCancel},
		{"cancel everything", IntentCancel},
		{"hello!", IntentGreeting},
		{"checkout please", IntentOrder},
		{"do you have red shirts", IntentUnknown},
	}
	for _, tc := range cases {
		res := m.Classify(Input{Text: tc.text})
		if res.Intent != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.text, tc.want, res.Intent)
		}
	}
}

func TestClassifyUnknownHasZeroConfidence(t *testing.T) {
	m := NewPatternMatcher()
	res := m.Classify(Input{Text: "something about red shirts maybe"})
	if res.Intent != IntentUnknown || res.Confidence != 0 {
		t.Fatalf("expected unknown at zero confidence, got %s %.2f", res.Intent, res.Confidence)
	}
}
