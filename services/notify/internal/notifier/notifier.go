// Package notifier turns booking events into e-mails to the participants.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/diagnosis/stays-bookings/pkg/events"
	"github.com/diagnosis/stays-bookings/pkg/logger"
	"github.com/diagnosis/stays-bookings/services/notify/internal/mailer"
	"github.com/diagnosis/stays-bookings/services/notify/internal/users"
)

type audience int

const (
	toGuest audience = iota
	toHost
	toCounterparty // whoever did not act
)

type notice struct {
	to      audience
	subject string
	body    string // fmt format taking the booking summary
}

var notices = map[string][]notice{
	events.BookingCreated: {
		{toHost, "New booking request", "You have a new booking request for %s. Please accept or decline within 24 hours."},
	},
	events.BookingConfirmed: {
		{toGuest, "Your booking is confirmed", "Your host accepted your request for %s."},
	},
	events.BookingDeclined: {
		{toGuest, "Your booking request was declined", "Your host declined your request for %s."},
	},
	events.BookingCancelled: {
		{toCounterparty, "A booking was cancelled", "The booking for %s was cancelled."},
	},
	events.BookingExpired: {
		{toGuest, "Your booking request expired", "Your host did not answer your request for %s in time."},
		{toHost, "A booking request expired", "The request for %s expired before you answered it."},
	},
	events.BookingCompleted: {
		{toGuest, "Thanks for staying", "Your stay for %s is complete."},
	},
}

type Notifier struct {
	mail        mailer.Service
	directory   users.Directory
	frontendURL string
}

func New(mail mailer.Service, directory users.Directory, frontendURL string) *Notifier {
	return &Notifier{mail: mail, directory: directory, frontendURL: strings.TrimRight(frontendURL, "/")}
}

// HandleMessage decodes a bus message and mails the participants it concerns.
func (n *Notifier) HandleMessage(ctx context.Context, msg *events.Message) error {
	var ev events.BookingEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Subject, err)
	}
	if ev.Type == "" {
		ev.Type = msg.Subject
	}
	return n.Handle(logger.WithBooking(ctx, ev.BookingID), ev)
}

func (n *Notifier) Handle(ctx context.Context, ev events.BookingEvent) error {
	list, ok := notices[ev.Type]
	if !ok {
		logger.DebugContext(ctx, "Ignoring booking event", "type", ev.Type)
		return nil
	}

	var errs []error
	for _, nt := range list {
		for _, userID := range recipients(nt.to, ev) {
			if err := n.send(ctx, userID, nt, ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func recipients(to audience, ev events.BookingEvent) []string {
	switch to {
	case toGuest:
		return []string{ev.GuestID}
	case toHost:
		return []string{ev.HostID}
	default:
		switch ev.ActorID {
		case ev.GuestID:
			return []string{ev.HostID}
		case ev.HostID:
			return []string{ev.GuestID}
		default:
			return []string{ev.GuestID, ev.HostID}
		}
	}
}

func (n *Notifier) send(ctx context.Context, userID string, nt notice, ev events.BookingEvent) error {
	contact, err := n.directory.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("look up user %s: %w", userID, err)
	}
	if contact == nil || contact.Email == "" {
		logger.WarnContext(ctx, "No e-mail for booking participant", "user_id", userID)
		return nil
	}

	stay := fmt.Sprintf("%s to %s", ev.StartDate, ev.EndDate)
	text := fmt.Sprintf(nt.body, stay)
	if ev.Type == events.BookingCancelled && ev.Reason != "" {
		text += " Reason: " + ev.Reason + "."
	}
	link := fmt.Sprintf("%s/bookings/%s", n.frontendURL, ev.BookingID)

	id, err := n.mail.Send(ctx, mailer.Message{
		ToEmail: contact.Email,
		ToName:  contact.Name,
		Subject: nt.subject,
		Text:    text + "\n\n" + link,
		HTML:    fmt.Sprintf(`<p>%s</p><p><a href="%s">View booking</a></p>`, html.EscapeString(text), html.EscapeString(link)),
	})
	if err != nil {
		return fmt.Errorf("send %q to %s: %w", nt.subject, userID, err)
	}
	logger.InfoContext(ctx, "Booking notification sent", "type", ev.Type, "user_id", userID, "message_id", id)
	return nil
}
