// Package command maps inbound text to an action.
//
// Rules are evaluated in table order and the first match wins. Routing is a
// pure function of the message body and whether the sender is registered;
// executing the action is the engine's job.
package command

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind names the action an inbound message resolves to.
type Kind string

const (
	Register    Kind = "register"
	Thanks      Kind = "thanks"
	NightText   Kind = "night_text"
	SetInsult   Kind = "set_insult"
	SetSweet    Kind = "set_sweet"
	Remove      Kind = "remove"
	Timezone    Kind = "timezone"
	MorningText Kind = "morning_text"
)

// Replies sent around each action.
const (
	ReplyWelcome       = "Congratulations! You will now receive good morning texts!"
	ReplyWelcomeText   = "Here's a first text to make you excited for the next morning: "
	ReplyThanks        = "You're welcome!"
	ReplyNight         = "Can't wait for the sunset? Here's a text for you:"
	ReplyInsult        = "ok, you wanted it that way"
	ReplySweet         = "oh no problem sweetie :)"
	ReplyLeave         = "I'm truly devastated to see you leave :("
	ReplyLeaveResume   = "You can text me anytime to resume our relationship"
	ReplyTimezone      = "Your timezone is: "
	ReplyMorning       = "Can't wait until morning? Here's a text for you:"
	invitationTemplate = "Hey %s! Do you want to receive a good morning message every day? Then reply \"Yes I do\""
)

// Action is the routing result.
type Action struct {
	Kind Kind
	Rule string // name of the matching rule
}

// Input is what routing looks at.
type Input struct {
	Body  string
	Known bool // sender already registered
}

type rule struct {
	name  string
	match func(in Input) bool
	kind  Kind
}

func anyOf(res ...*regexp.Regexp) func(Input) bool {
	return func(in Input) bool {
		for _, re := range res {
			if re.MatchString(in.Body) {
				return true
			}
		}
		return false
	}
}

func exact(re *regexp.Regexp) func(Input) bool {
	return func(in Input) bool { return re.MatchString(strings.TrimSpace(in.Body)) }
}

var (
	reThank    = regexp.MustCompile(`(?i)thank`)
	reThx      = regexp.MustCompile(`(?i)^thx`)
	reEvening  = regexp.MustCompile(`(?i)evening`)
	reNight    = regexp.MustCompile(`(?i)night`)
	reNaughty  = regexp.MustCompile(`(?i)^be naughty to me$`)
	reNice     = regexp.MustCompile(`(?i)^be nice to me$`)
	reLeave    = regexp.MustCompile(`(?i)^leave me (the fuck )?alone$`)
	reTimezone = regexp.MustCompile(`(?i)^what is my timezone\??$`)
)

var table = []rule{
	{name: "register", kind: Register, match: func(in Input) bool { return !in.Known }},
	{name: "thanks", kind: Thanks, match: func(in Input) bool {
		return reThank.MatchString(in.Body) || reThx.MatchString(strings.TrimSpace(in.Body))
	}},
	{name: "night", kind: NightText, match: anyOf(reEvening, reNight)},
	{name: "naughty", kind: SetInsult, match: exact(reNaughty)},
	{name: "nice", kind: SetSweet, match: exact(reNice)},
	{name: "leave", kind: Remove, match: exact(reLeave)},
	{name: "timezone", kind: Timezone, match: exact(reTimezone)},
	{name: "default", kind: MorningText, match: func(Input) bool { return true }},
}

// Route returns the action for in.
func Route(in Input) Action {
	for _, r := range table {
		if r.match(in) {
			return Action{Kind: r.kind, Rule: r.name}
		}
	}
	// unreachable: the last rule always matches
	return Action{Kind: MorningText, Rule: "default"}
}

// Rules lists rule names in evaluation order.
func Rules() []string {
	out := make([]string, len(table))
	for i, r := range table {
		out[i] = r.name
	}
	return out
}

// Invitation is the reply to a start-chatting event.
func Invitation(firstName string) string {
	return fmt.Sprintf(invitationTemplate, firstName)
}
