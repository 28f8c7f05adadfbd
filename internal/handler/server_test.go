package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/backend/memory"
	"github.com/pkordes/trip-tracker/internal/handler"
	"github.com/pkordes/trip-tracker/internal/validation"
	"github.com/pkordes/trip-tracker/internal/view"
)

// ---- helpers ---------------------------------------------------------------

const sessionCookie = "tripweb_session"

// browser replays requests against the router with one session cookie,
// without following redirects.
type browser struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func newTestServer(t *testing.T, opts handler.Options) (*browser, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	srv := handler.NewServer(store.Factory(), opts, nil)
	t.Cleanup(srv.Close)
	return &browser{t: t, h: srv.Router()}, store
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.h.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			b.cookie = c
		}
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func requireRedirect(t *testing.T, rec *httptest.ResponseRecorder, code int, location string) {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
	require.Equal(t, location, rec.Header().Get("Location"))
}

// signUp registers and signs in email through the auth view.
func (b *browser) signUp(email string) {
	b.t.Helper()
	requireRedirect(b.t, b.post("/sign-in/mode", nil), http.StatusSeeOther, "/sign-in")
	rec := b.post("/sign-in", url.Values{"email": {email}, "password": {"secret1"}})
	requireRedirect(b.t, rec, http.StatusSeeOther, "/")
}

func tripForm(start, destination, date, transport string) url.Values {
	return url.Values{
		"start":       {start},
		"destination": {destination},
		"date":        {date},
		"note":        {""},
		"transport":   {transport},
	}
}

// ---- GET /healthz ----------------------------------------------------------

func TestGetHealth_returns200WithOKStatus(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	rec := b.get("/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	var body handler.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Nil(t, b.cookie, "health checks must not open a browser session")
}

func TestGetMetrics_countsRequests(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})
	b.get("/healthz")

	rec := b.get("/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tripweb_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

// ---- sessions and routing --------------------------------------------------

func TestHome_RedirectsToSignInWhenSignedOut(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	rec := b.get("/")

	requireRedirect(t, rec, http.StatusFound, "/sign-in")
	require.NotNil(t, b.cookie)
	assert.True(t, b.cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, b.cookie.SameSite)
	assert.Equal(t, "/", b.cookie.Path)
}

func TestSession_CookieIsReused(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})
	b.get("/sign-in")
	first := b.cookie.Value

	rec := b.get("/sign-in")

	assert.Empty(t, rec.Result().Cookies(), "a known session must not be re-issued")
	assert.Equal(t, first, b.cookie.Value)
}

func TestSession_UnknownCookieStartsFresh(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})
	b.cookie = &http.Cookie{Name: sessionCookie, Value: "forged"}

	b.get("/sign-in")

	assert.NotEqual(t, "forged", b.cookie.Value)
}

func TestTrips_RendersWhenSignedOut(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	rec := b.get("/trips")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), view.MsgNoTrips)
	assert.Contains(t, rec.Body.String(), `href="/sign-in"`)
}

func TestUnknownPath_404(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	rec := b.get("/nowhere")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found")
}

// ---- auth view -------------------------------------------------------------

func TestSignIn_RendersLoginForm(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	rec := b.get("/sign-in")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `action="/sign-in"`)
	assert.Contains(t, body, "<h2>Sign in</h2>")
}

func TestSignIn_ModeToggle(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	requireRedirect(t, b.post("/sign-in/mode", nil), http.StatusSeeOther, "/sign-in")

	assert.Contains(t, b.get("/sign-in").Body.String(), "<h2>Register</h2>")
}

func TestSignUp_NavigatesHome(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	b.signUp("ana@example.com")
	rec := b.get("/")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ana@example.com")
	assert.Contains(t, body, "Sign out")
	assert.Contains(t, body, view.MsgNoTrips)
	assert.Contains(t, body, "Add a new trip")
}

func TestSignUp_ConfirmationRequiredStaysOnSignIn(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	store.RequireConfirmation = true

	b.post("/sign-in/mode", nil)
	rec := b.post("/sign-in", url.Values{"email": {"ana@example.com"}, "password": {"secret1"}})

	requireRedirect(t, rec, http.StatusSeeOther, "/sign-in")
	assert.Contains(t, b.get("/sign-in").Body.String(), view.MsgSignedUp)
	requireRedirect(t, b.get("/"), http.StatusFound, "/sign-in")
}

func TestSignIn_ExistingAccount(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")

	other := &browser{t: t, h: b.h}
	rec := other.post("/sign-in", url.Values{"email": {"ana@example.com"}, "password": {"secret1"}})

	requireRedirect(t, rec, http.StatusSeeOther, "/")
	assert.Contains(t, other.get("/").Body.String(), "ana@example.com")
	assert.Empty(t, store.Trips())
}

func TestSignIn_InvalidCredentialsShowBackendMessage(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	rec := b.post("/sign-in", url.Values{"email": {"ana@example.com"}, "password": {"secret1"}})

	requireRedirect(t, rec, http.StatusSeeOther, "/sign-in")
	body := b.get("/sign-in").Body.String()
	assert.Contains(t, body, "Invalid login credentials")
	assert.Contains(t, body, `value="ana@example.com"`)
}

func TestSignIn_ValidationMessage(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	b.post("/sign-in", url.Values{"email": {"not-an-email"}, "password": {"secret1"}})

	assert.Contains(t, b.get("/sign-in").Body.String(), validation.MsgEmailInvalid)
}

func TestSignIn_RedirectsHomeWhenAuthenticated(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")

	requireRedirect(t, b.get("/sign-in"), http.StatusFound, "/")
}

func TestSignIn_RateLimited(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{SignInRate: 0.001, SignInBurst: 1})
	form := url.Values{"email": {"ana@example.com"}, "password": {"secret1"}}

	require.Equal(t, http.StatusSeeOther, b.post("/sign-in", form).Code)
	rec := b.post("/sign-in", form)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestSignOut_ClearsSession(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")

	requireRedirect(t, b.post("/sign-out", nil), http.StatusSeeOther, "/sign-in")

	requireRedirect(t, b.get("/"), http.StatusFound, "/sign-in")
}

func TestSignOut_BackendFailureStillClearsLocally(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	store.FailNext(memory.OpSignOut, &backend.Error{Message: "network down"})

	requireRedirect(t, b.post("/sign-out", nil), http.StatusSeeOther, "/sign-in")

	requireRedirect(t, b.get("/"), http.StatusFound, "/sign-in")
}

// ---- trip form -------------------------------------------------------------

func TestCreateTrip_ListedSortedByDate(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")

	requireRedirect(t, b.post("/trips", tripForm("Brno", "Berlin", "2024-07-01", "plane")), http.StatusSeeOther, "/")
	requireRedirect(t, b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train")), http.StatusSeeOther, "/")

	require.Len(t, store.Trips(), 2)
	for _, trip := range store.Trips() {
		assert.False(t, trip.Done)
		assert.NotEmpty(t, trip.UserID)
	}

	body := b.get("/").Body.String()
	may := strings.Index(body, "2024-05-01: Prague → Vienna (Train)")
	july := strings.Index(body, "2024-07-01: Brno → Berlin (Plane)")
	require.NotEqual(t, -1, may)
	require.NotEqual(t, -1, july)
	assert.Less(t, may, july)
	assert.NotContains(t, body, view.MsgNoTrips)
}

func TestCreateTrip_ValidationErrorsKeepDraft(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")

	requireRedirect(t, b.post("/trips", tripForm("Prague", "", "2024-05-01", "")), http.StatusSeeOther, "/")

	assert.Empty(t, store.Trips())
	body := b.get("/").Body.String()
	assert.Contains(t, body, validation.MsgDestination)
	assert.Contains(t, body, validation.MsgTransport)
	assert.Contains(t, body, `value="Prague"`)
}

func TestCreateTrip_BackendFailureAlertsOnce(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	store.FailNext(memory.OpInsert, &backend.Error{Message: "quota exceeded"})

	b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))

	body := b.get("/").Body.String()
	assert.Contains(t, body, "Error while saving: quota exceeded")
	assert.Contains(t, body, view.MsgSubmitFailed)
	assert.Contains(t, body, `value="Vienna"`)

	assert.NotContains(t, b.get("/").Body.String(), "Error while saving")
}

func TestCreateTrip_RedirectsWhenSignedOut(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})

	rec := b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))

	requireRedirect(t, rec, http.StatusSeeOther, "/sign-in")
	assert.Empty(t, store.Trips())
}

func TestEditTrip_PrefillsAndUpdates(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))
	id := store.Trips()[0].ID
	b.post("/trips/"+id+"/toggle", url.Values{"return": {"/"}})

	requireRedirect(t, b.post("/trips/"+id+"/edit", nil), http.StatusSeeOther, "/")
	body := b.get("/").Body.String()
	assert.Contains(t, body, "Edit trip")
	assert.Contains(t, body, "Save changes")
	assert.Contains(t, body, `value="Vienna"`)

	b.post("/trips", tripForm("Prague", "Budapest", "2024-05-02", "car"))

	trips := store.Trips()
	require.Len(t, trips, 1)
	assert.Equal(t, "Budapest", trips[0].Destination)
	assert.Equal(t, "2024-05-02", trips[0].Date)
	assert.True(t, trips[0].Done, "a form save leaves the completion flag alone")
	assert.Contains(t, b.get("/").Body.String(), "Add a new trip")
}

// ---- list actions ----------------------------------------------------------

func TestToggleTrip_ReturnsToList(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))
	id := store.Trips()[0].ID

	requireRedirect(t, b.post("/trips/"+id+"/toggle", url.Values{"return": {"/trips"}}), http.StatusSeeOther, "/trips")
	assert.True(t, store.Trips()[0].Done)

	requireRedirect(t, b.post("/trips/"+id+"/toggle", url.Values{"return": {"https://evil.example"}}), http.StatusSeeOther, "/")
	assert.False(t, store.Trips()[0].Done)
}

func TestToggleTrip_BackendFailureAlerts(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))
	id := store.Trips()[0].ID
	store.FailNext(memory.OpUpdate, &backend.Error{Message: "row locked"})

	b.post("/trips/"+id+"/toggle", url.Values{"return": {"/trips"}})

	assert.False(t, store.Trips()[0].Done)
	assert.Contains(t, b.get("/trips").Body.String(), "Error while changing state: row locked")
}

func TestDeleteTrip_ConfirmationPage(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))
	id := store.Trips()[0].ID

	rec := b.get("/trips/" + id + "/delete?return=/trips")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, view.MsgConfirmDelete)
	assert.Contains(t, body, "2024-05-01: Prague → Vienna (Train)")
	assert.Len(t, store.Trips(), 1)
}

func TestDeleteTrip_DeclinedKeepsTrip(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))
	id := store.Trips()[0].ID

	rec := b.post("/trips/"+id+"/delete", url.Values{"confirm": {"no"}, "return": {"/"}})

	requireRedirect(t, rec, http.StatusSeeOther, "/")
	assert.Len(t, store.Trips(), 1)
}

func TestDeleteTrip_Confirmed(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))
	id := store.Trips()[0].ID

	rec := b.post("/trips/"+id+"/delete", url.Values{"confirm": {"yes"}, "return": {"/trips"}})

	requireRedirect(t, rec, http.StatusSeeOther, "/trips")
	assert.Empty(t, store.Trips())
	assert.Contains(t, b.get("/trips").Body.String(), view.MsgNoTrips)
}

func TestTripActions_UnknownID404(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")

	assert.Equal(t, http.StatusNotFound, b.post("/trips/999/edit", nil).Code)
	assert.Equal(t, http.StatusNotFound, b.post("/trips/999/toggle", nil).Code)
	assert.Equal(t, http.StatusNotFound, b.get("/trips/999/delete").Code)
}

func TestTrips_OtherUsersAreInvisible(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))

	other := &browser{t: t, h: b.h}
	other.signUp("ben@example.com")

	assert.Contains(t, other.get("/").Body.String(), view.MsgNoTrips)
}

// ---- GET /trips/export.csv -------------------------------------------------

func TestExport_CSVInListOrder(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})
	b.signUp("ana@example.com")
	b.post("/trips", tripForm("Brno", "Berlin", "2024-07-01", "plane"))
	b.post("/trips", tripForm("Prague", "Vienna, AT", "2024-05-01", "train"))

	rec := b.get("/trips/export.csv")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "date,start,destination,transport,done,note\n"+
		"2024-05-01,Prague,\"Vienna, AT\",Train,false,\n"+
		"2024-07-01,Brno,Berlin,Plane,false,\n", rec.Body.String())
}

func TestExport_RedirectsWhenSignedOut(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{})

	requireRedirect(t, b.get("/trips/export.csv"), http.StatusFound, "/sign-in")
}

func TestSignIn_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	b, _ := newTestServer(t, handler.Options{SignInRate: 0.001, SignInBurst: 1})
	form := url.Values{"email": {"ana@example.com"}, "password": {"secret1"}}

	signIn := func(forwarded string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/sign-in", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		return b.do(req)
	}

	require.Equal(t, http.StatusSeeOther, signIn("203.0.113.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, signIn("203.0.113.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, signIn("203.0.113.3").Code)
}

func TestSignIn_RateLimitedRequestsOpenNoSession(t *testing.T) {
	srv := handler.NewServer(memory.NewStore().Factory(), handler.Options{SignInRate: 0.001, SignInBurst: 1}, nil)
	t.Cleanup(srv.Close)
	h := srv.Router()
	form := url.Values{"email": {"ana@example.com"}, "password": {"secret1"}}

	for i := range 5 {
		req := httptest.NewRequest(http.MethodPost, "/sign-in", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i > 0 {
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Empty(t, rec.Result().Cookies())
		}
	}

	assert.Equal(t, 1, srv.Registry().Len())
}

func TestSession_CreationCappedPerClient(t *testing.T) {
	srv := handler.NewServer(memory.NewStore().Factory(), handler.Options{
		NewSessionRate:  0.001,
		NewSessionBurst: 3,
		MaxSessions:     100,
	}, nil)
	t.Cleanup(srv.Close)
	h := srv.Router()

	codes := make([]int, 0, 6)
	for range 6 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sign-in", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{200, 200, 200, 429, 429, 429}, codes)
	assert.Equal(t, 3, srv.Registry().Len())
}

func TestSession_RegistryCapped(t *testing.T) {
	srv := handler.NewServer(memory.NewStore().Factory(), handler.Options{MaxSessions: 2}, nil)
	t.Cleanup(srv.Close)
	h := srv.Router()

	for range 5 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sign-in", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 2, srv.Registry().Len())
}

func TestSignOut_NextUserGetsEmptyForm(t *testing.T) {
	b, store := newTestServer(t, handler.Options{})
	other := &browser{t: t, h: b.h}
	other.signUp("ben@example.com")

	b.signUp("ana@example.com")
	b.post("/trips", tripForm("Prague", "Vienna", "2024-05-01", "train"))
	id := store.Trips()[0].ID
	requireRedirect(t, b.post("/trips/"+id+"/edit", nil), http.StatusSeeOther, "/")
	b.post("/trips", tripForm("Secretville", "", "2024-05-01", "train"))
	require.Contains(t, b.get("/").Body.String(), `value="Secretville"`)

	requireRedirect(t, b.post("/sign-out", nil), http.StatusSeeOther, "/sign-in")
	b.post("/sign-in/mode", nil)
	rec := b.post("/sign-in", url.Values{"email": {"ben@example.com"}, "password": {"secret1"}})
	requireRedirect(t, rec, http.StatusSeeOther, "/")

	body := b.get("/").Body.String()
	assert.Contains(t, body, "Add a new trip")
	assert.NotContains(t, body, "Edit trip")
	assert.NotContains(t, body, "Secretville")
	assert.NotContains(t, body, `value="Vienna"`)
}
