// Package notifier composes the outbound messages of the bot. It only
// builds content; delivery goes through the Sender contract implemented
// by the telegram package.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tonvote/votebot/internal/tonvote"
)

// Button is an optional URL button attached to a message.
type Button struct {
	Text string
	URL  string
}

// Message is a composed notification addressed to one chat group.
type Message struct {
	Text   string
	Button *Button
}

// Sender delivers a composed message to a group chat.
type Sender interface {
	Send(ctx context.Context, groupID int64, msg Message) error
}

// Composer builds notification messages with links into the TON Vote
// web app.
type Composer struct {
	appURL string
}

func NewComposer(appURL string) *Composer {
	return &Composer{appURL: strings.TrimSuffix(appURL, "/")}
}

// ProposalURL returns the web app link for a proposal.
func (c *Composer) ProposalURL(daoAddress, proposalAddress string) string {
	return fmt.Sprintf("%s/%s/proposal/%s", c.appURL, daoAddress, proposalAddress)
}

// NewProposal announces a proposal that has not started voting yet.
func (c *Composer) NewProposal(daoName string, p *tonvote.Proposal) Message {
	text := fmt.Sprintf(
		"📢 <b>New proposal in %s</b>\n\n"+
			"<b>%s</b>\n%s\n\n"+
			"🟢 Voting starts: %s\n"+
			"🔴 Voting ends: %s",
		daoName,
		p.Title, trimDescription(p.Description),
		formatTime(p.Start()),
		formatTime(p.End()),
	)

	return Message{
		Text: text,
		Button: &Button{
			Text: "📬 View proposal",
			URL:  c.ProposalURL(p.DaoAddress, p.Address),
		},
	}
}

// VoteStarted announces that voting has opened on a proposal.
func (c *Composer) VoteStarted(daoName string, p *tonvote.Proposal) Message {
	text := fmt.Sprintf(
		"🗳 <b>Voting has started in %s</b>\n\n"+
			"<b>%s</b>\n%s",
		daoName,
		p.Title, trimDescription(p.Description),
	)

	return Message{
		Text: text,
		Button: &Button{
			Text: "✍🏻 Vote now",
			URL:  c.ProposalURL(p.DaoAddress, p.Address),
		},
	}
}

// VoteEnded announces the final tally of a proposal. Result may still
// be missing when the upstream has not finalized it at fire time.
func (c *Composer) VoteEnded(daoName string, p *tonvote.Proposal) Message {
	var results string
	if p.Result != nil {
		results = fmt.Sprintf(
			"✅ Yes %s\n❌ No %s\n🤐 Abstain %s",
			formatTally(p.Result.Yes), formatTally(p.Result.No), formatTally(p.Result.Abstain),
		)
	} else {
		results = "Results are not available yet."
	}

	text := fmt.Sprintf(
		"🏁 <b>Voting has ended in %s</b>\n\n"+
			"<b>%s</b>\n\n%s",
		daoName,
		p.Title,
		results,
	)

	return Message{
		Text: text,
		Button: &Button{
			Text: "📊 View results",
			URL:  c.ProposalURL(p.DaoAddress, p.Address),
		},
	}
}

// DaoDigest is one DAO's section of a group digest.
type DaoDigest struct {
	DaoName string
	Active  []*tonvote.Proposal
	Pending []*tonvote.Proposal
}

// IsEmpty reports whether the section has nothing to show.
func (d DaoDigest) IsEmpty() bool {
	return len(d.Active) == 0 && len(d.Pending) == 0
}

// Digest aggregates all of a group's subscribed DAOs into one daily
// report message. Empty sections are dropped by the callers, so every
// section passed in has at least one proposal.
func (c *Composer) Digest(sections []DaoDigest) Message {
	var b strings.Builder
	b.WriteString("📊 <b>DAILY REPORT</b>\n")

	for _, section := range sections {
		b.WriteString(fmt.Sprintf("\nDaily report for <b>%s</b>\n", section.DaoName))

		b.WriteString("\nActive proposals:\n")
		if len(section.Active) > 0 {
			for _, p := range section.Active {
				var tally string
				if p.Result != nil {
					tally = fmt.Sprintf(": ✅ Yes %s, ❌ No %s, 🤐 Abstain %s",
						formatTally(p.Result.Yes), formatTally(p.Result.No), formatTally(p.Result.Abstain))
				}
				b.WriteString(fmt.Sprintf("- <a href='%s'>%s</a>%s\n",
					c.ProposalURL(p.DaoAddress, p.Address), p.Title, tally))
			}
		} else {
			b.WriteString("<i>No active proposals</i>\n")
		}

		b.WriteString("\nPending proposals:\n")
		if len(section.Pending) > 0 {
			for _, p := range section.Pending {
				b.WriteString(fmt.Sprintf("- <a href='%s'>%s</a>\n",
					c.ProposalURL(p.DaoAddress, p.Address), p.Title))
			}
		} else {
			b.WriteString("<i>No pending proposals</i>\n")
		}
	}

	return Message{Text: strings.TrimRight(b.String(), "\n")}
}

const maxDescriptionLen = 300

func trimDescription(s string) string {
	if len(s) <= maxDescriptionLen {
		return s
	}
	return strings.TrimSpace(s[:maxDescriptionLen]) + "…"
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 MST")
}

func formatTally(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
