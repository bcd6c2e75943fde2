package command

import (
	"reflect"
	"testing"
)

func TestRoute(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		body  string
		known bool
		want  Kind
	}{
		{"unknown sender registers", "be nice to me", false, Register},
		{"unknown sender thanking registers", "thanks!", false, Register},
		{"thanks anywhere", "oh, Thank you so much", true, Thanks},
		{"thx prefix", "THX buddy", true, Thanks},
		{"thx not prefix", "ok thx", true, MorningText},
		{"thanks beats night", "thanks for the night text", true, Thanks},
		{"evening substring", "good EVENING", true, NightText},
		{"night substring", "nightnight", true, NightText},
		{"naughty", "be naughty to me", true, SetInsult},
		{"naughty trimmed and cased", "  Be Naughty To Me \n", true, SetInsult},
		{"naughty not exact", "please be naughty to me", true, MorningText},
		{"nice", "be nice to me", true, SetSweet},
		{"leave", "leave me alone", true, Remove},
		{"leave with infix", "Leave me the fuck alone", true, Remove},
		{"leave other infix", "leave me totally alone", true, MorningText},
		{"timezone", "what is my timezone?", true, Timezone},
		{"timezone no question mark", "What is my timezone", true, Timezone},
		{"default", "good morning", true, MorningText},
		{"empty", "", true, MorningText},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Route(Input{Body: tt.body, Known: tt.known})
			if got.Kind != tt.want {
				t.Fatalf("Route(%q, known=%v) = %s (rule %s), want %s", tt.body, tt.known, got.Kind, got.Rule, tt.want)
			}
		})
	}
}

func TestRuleOrder(t *testing.T) {
	t.Parallel()
	want := []string{"register", "thanks", "night", "naughty", "nice", "leave", "timezone", "default"}
	if got := Rules(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Rules = %v, want %v", got, want)
	}
}

func TestInvitation(t *testing.T) {
	t.Parallel()
	want := `Hey Ada! Do you want to receive a good morning message every day? Then reply "Yes I do"`
	if got := Invitation("Ada"); got != want {
		t.Fatalf("Invitation = %q", got)
	}
}
