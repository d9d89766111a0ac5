package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"mindspace-server/internal/config"
)

// MeetingDetails describes the calendar event backing a counselling session.
type MeetingDetails struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// MeetingLinkGenerator produces a joinable meeting URL for an approved
// appointment. Failures must not abort the approval transition.
type MeetingLinkGenerator interface {
	CreateMeeting(ctx context.Context, details MeetingDetails) (string, error)
}

// GoogleMeetGenerator creates a Google Calendar event with an attached Meet
// conference and returns its hangout link.
type GoogleMeetGenerator struct {
	cfg config.GoogleCalendarConfig
}

// NewGoogleMeetGenerator creates a GoogleMeetGenerator.
func NewGoogleMeetGenerator(cfg config.GoogleCalendarConfig) *GoogleMeetGenerator {
	return &GoogleMeetGenerator{cfg: cfg}
}

// ErrNotConfigured is returned when the Google OAuth credentials are absent.
var ErrNotConfigured = errors.New("google calendar credentials not configured")

// CreateMeeting inserts a calendar event with conference data and returns the
// generated Meet link.
func (g *GoogleMeetGenerator) CreateMeeting(ctx context.Context, details MeetingDetails) (string, error) {
	if g.cfg.ClientID == "" || g.cfg.ClientSecret == "" || g.cfg.RefreshToken == "" {
		return "", ErrNotConfigured
	}

	oauthConfig := &oauth2.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		RedirectURL:  g.cfg.RedirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarEventsScope},
	}
	tokenSource := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: g.cfg.RefreshToken})

	svc, err := calendar.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return "", fmt.Errorf("create calendar service: %w", err)
	}

	attendees := make([]*calendar.EventAttendee, 0, len(details.Attendees))
	for _, email := range details.Attendees {
		attendees = append(attendees, &calendar.EventAttendee{Email: email})
	}

	event := &calendar.Event{
		Summary:     details.Summary,
		Description: details.Description,
		Start: &calendar.EventDateTime{
			DateTime: details.Start.Format(time.RFC3339),
			TimeZone: g.cfg.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: details.End.Format(time.RFC3339),
			TimeZone: g.cfg.TimeZone,
		},
		Attendees: attendees,
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: fmt.Sprintf("mindspace-%d", time.Now().UnixNano()),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := svc.Events.Insert("primary", event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	if created.HangoutLink == "" {
		return "", errors.New("calendar event created without a meet link")
	}

	return created.HangoutLink, nil
}
