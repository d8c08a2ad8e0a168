package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/homekeep/homekeep/internal/config"
	"github.com/homekeep/homekeep/internal/utils"
	"github.com/homekeep/homekeep/pkg/event"
	"github.com/homekeep/homekeep/pkg/sync"
)

// Gateway implements sync.Gateway against the Google Calendar API. It builds
// one short-lived calendar client per call, authenticated from the
// connection's credentials.
type Gateway struct {
	cfg         config.Application
	tokens      sync.TokenStore
	clock       utils.Clock
	oauthConfig *oauth2.Config
	// extraOpts are appended after the credential options. Tests use them to
	// point the client at a local server.
	extraOpts []option.ClientOption
}

func NewGateway(cfg config.Application, tokens sync.TokenStore, clock utils.Clock, extraOpts ...option.ClientOption) *Gateway {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Google.ClientId,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     googleoauth.Endpoint,
		RedirectURL:  cfg.Host + "/api/integrations/google/auth/callback",
		Scopes:       []string{gcal.CalendarEventsScope},
	}
	return &Gateway{
		cfg:         cfg,
		tokens:      tokens,
		clock:       clock,
		oauthConfig: oauthConfig,
		extraOpts:   extraOpts,
	}
}

func (g *Gateway) CreateEvent(ctx context.Context, conn sync.Connection, ev event.Event) (string, error) {
	service, err := g.calendarService(ctx, conn)
	if err != nil {
		return "", err
	}
	result, err := service.Events.Insert(conn.CalendarID, localToRemote(ev)).Context(ctx).Do()
	if err != nil {
		err := fmt.Errorf("unable to insert event in Google Calendar: %w", err)
		log.Error(err)
		return "", err
	}
	return result.Id, nil
}

func (g *Gateway) UpdateEvent(ctx context.Context, conn sync.Connection, ev event.Event, remoteEventId string) error {
	service, err := g.calendarService(ctx, conn)
	if err != nil {
		return err
	}
	_, err = service.Events.Update(conn.CalendarID, remoteEventId, localToRemote(ev)).Context(ctx).Do()
	if err != nil {
		err := fmt.Errorf("unable to update event in Google Calendar: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (g *Gateway) DeleteEvent(ctx context.Context, conn sync.Connection, remoteEventId string) error {
	service, err := g.calendarService(ctx, conn)
	if err != nil {
		return err
	}
	err = service.Events.Delete(conn.CalendarID, remoteEventId).Context(ctx).Do()
	if isGone(err) {
		// Already removed on the remote side, the delete is done.
		log.Debugf("Remote event %s already gone", remoteEventId)
		return nil
	}
	if err != nil {
		err := fmt.Errorf("unable to delete event in Google Calendar: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

// ListChanges runs one incremental listing. With a sync token the listing is
// a delta since the previous pull; without one it is a bounded full window
// reaching back the configured number of days. An expired token (410) clears
// the cursor and falls back to the full window within the same call.
func (g *Gateway) ListChanges(ctx context.Context, conn sync.Connection) (sync.ChangeSet, error) {
	service, err := g.calendarService(ctx, conn)
	if err != nil {
		return sync.ChangeSet{}, err
	}

	changeSet, err := g.listWithToken(ctx, service, conn.CalendarID, conn.SyncToken)
	// Only 410 means the sync token expired. Other failures, 404 included,
	// must not trigger a full-window listing.
	if hasStatus(err, http.StatusGone) && conn.SyncToken != "" {
		log.Infof("Sync token for connection %s expired, falling back to full window", conn.ID)
		return g.listWithToken(ctx, service, conn.CalendarID, "")
	}
	return changeSet, err
}

func (g *Gateway) listWithToken(ctx context.Context, service *gcal.Service, calendarId, syncToken string) (sync.ChangeSet, error) {
	var changeSet sync.ChangeSet
	pageToken := ""
	for {
		call := service.Events.List(calendarId).ShowDeleted(true).Context(ctx)
		if syncToken != "" {
			call = call.SyncToken(syncToken)
		} else {
			timeMin := g.clock.Now().AddDate(0, 0, -g.cfg.Sync.LookbackDays)
			call = call.TimeMin(timeMin.Format(time.RFC3339))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := call.Do()
		if err != nil {
			if !hasStatus(err, http.StatusGone) {
				log.Errorf("unable to list events from Google Calendar: %v", err)
			}
			return sync.ChangeSet{}, fmt.Errorf("unable to list events from Google Calendar: %w", err)
		}

		for _, item := range result.Items {
			change, err := remoteToChange(item)
			if err != nil {
				return sync.ChangeSet{}, err
			}
			changeSet.Changes = append(changeSet.Changes, change)
		}

		if result.NextPageToken != "" {
			pageToken = result.NextPageToken
			continue
		}
		changeSet.NextSyncToken = result.NextSyncToken
		return changeSet, nil
	}
}

func (g *Gateway) calendarService(ctx context.Context, conn sync.Connection) (*gcal.Service, error) {
	opts, err := g.credentialOptions(ctx, conn)
	if err != nil {
		return nil, err
	}
	opts = append(opts, g.extraOpts...)

	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		err := fmt.Errorf("unable to build Calendar client: %w", err)
		log.Error(err)
		return nil, err
	}
	return service, nil
}

func (g *Gateway) credentialOptions(ctx context.Context, conn sync.Connection) ([]option.ClientOption, error) {
	switch creds := conn.Credentials.(type) {
	case sync.ServiceAccountCredentials:
		return []option.ClientOption{
			option.WithCredentialsFile(creds.CredentialsFile),
			option.WithScopes(gcal.CalendarEventsScope),
		}, nil
	case sync.OAuthCredentials:
		token, err := g.freshToken(ctx, conn, creds)
		if err != nil {
			return nil, err
		}
		return []option.ClientOption{
			option.WithTokenSource(oauth2.StaticTokenSource(token)),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported credential kind %T", conn.Credentials)
	}
}

// freshToken refreshes an expired access token and persists the result so
// the next task skips the refresh round trip.
func (g *Gateway) freshToken(ctx context.Context, conn sync.Connection, creds sync.OAuthCredentials) (*oauth2.Token, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
	}
	if token.Valid() {
		return token, nil
	}

	refreshed, err := g.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		err := fmt.Errorf("unable to refresh Google auth token for connection %s: %w", conn.ID, err)
		log.Error(err)
		return nil, err
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}
	err = g.tokens.UpdateOAuthCredentials(ctx, conn.ID, sync.OAuthCredentials{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		Expiry:       refreshed.Expiry,
	})
	if err != nil {
		log.Warnf("Could not persist refreshed token for connection %s: %v", conn.ID, err)
	}
	return refreshed, nil
}

// isGone reports whether the remote event no longer exists. Google returns
// 410 for deleted events and 404 for ids it never had, and a delete is done
// either way.
func isGone(err error) bool {
	return hasStatus(err, http.StatusGone) || hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
