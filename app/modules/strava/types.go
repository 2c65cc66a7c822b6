// Package strava is the client for the Strava v3 API: activity listing, GPS
// stream download, and OAuth token refresh. All requests from all participants
// share one rate limiter because Strava's quota is per application, not per
// athlete.
package strava

import (
	"time"

	routedomain "github.com/km-mtb/kmtb-bot/app/modules/route/domain"
)

// DefaultBaseURL is the Strava API root.
const DefaultBaseURL = "https://www.strava.com/api/v3"

// TokenURL is the Strava OAuth token exchange/refresh endpoint.
const TokenURL = "https://www.strava.com/oauth/token"

// rideType is the activity type the contest accepts. Everything else is
// filtered out before any geometric work.
const rideType = "Ride"

// Activity is the summary representation returned by the activity listing.
type Activity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	DistanceM   float64   `json:"distance"`
	ElapsedTime int       `json:"elapsed_time"`
	StartDate   time.Time `json:"start_date"`
}

// streamSet is the keyed-by-type streams response; only latlng is requested.
type streamSet struct {
	LatLng struct {
		Data [][]float64 `json:"data"`
	} `json:"latlng"`
}

func (s streamSet) polyline() routedomain.Polyline {
	out := make(routedomain.Polyline, 0, len(s.LatLng.Data))
	for _, pair := range s.LatLng.Data {
		if len(pair) != 2 {
			continue
		}
		out = append(out, routedomain.Point{Lat: pair[0], Lon: pair[1]})
	}
	return out
}

// Credential is the OAuth token pair for one participant, as the token
// manager sees it. Persistence lives in the participant repository.
type Credential struct {
	ParticipantID string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
}

// RotatedToken is a freshly refreshed token pair to be committed to storage.
// Strava rotates the refresh token on every refresh, so the previous value is
// dead the moment this exists; losing it before it is durably stored breaks
// all future refreshes for the participant.
type RotatedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
