package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/digitclash/server/internal/events"
	"github.com/digitclash/server/internal/game"
	"github.com/digitclash/server/internal/hub"
	"github.com/digitclash/server/internal/session"
	"github.com/digitclash/server/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	h := hub.New()
	svc := session.New(store.NewMemoryRegistry(), h, nil, session.Config{})
	return New(svc, h, nil)
}

// doJSON runs one request through the router. token, when set, goes into
// the Authorization header.
func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

// seats is one created-and-joined two-player room.
type seats struct {
	code  string
	host  seatGrant
	guest seatGrant
}

// seatTwo creates a room with a host and joins a second player.
func seatTwo(t *testing.T, srv *Server) seats {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/rooms", "", createRoomReq{MaxPlayers: 2, HostName: "ada"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	var created createRoomRes
	decodeJSON(t, rec, &created)
	if created.Host == nil {
		t.Fatal("create response missing host grant")
	}

	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+created.Room.Code+"/join", "", joinRoomReq{Name: "ben", Avatar: "owl"})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d: %s", rec.Code, rec.Body)
	}
	var joined joinRoomRes
	decodeJSON(t, rec, &joined)

	return seats{code: created.Room.Code, host: *created.Host, guest: joined.Seat}
}

// startGame commits both secrets: host holds 1234, guest holds 5678.
func startGame(t *testing.T, srv *Server, s seats) {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/secret", s.host.Token, setSecretReq{Secret: "1234"})
	if rec.Code != http.StatusOK {
		t.Fatalf("host secret status = %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/secret", s.guest.Token, setSecretReq{Secret: "5678"})
	if rec.Code != http.StatusOK {
		t.Fatalf("guest secret status = %d: %s", rec.Code, rec.Body)
	}
}

func TestHealthAndDiscovery(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, srv, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "digitclash") {
		t.Fatalf("discovery = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q, want application/json", ct)
	}
}

func TestCreateRoomGrantsHostSeat(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/rooms", "", createRoomReq{MaxPlayers: 2, HostName: "ada"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var res createRoomRes
	decodeJSON(t, rec, &res)
	if len(res.Room.Code) != store.CodeLength {
		t.Fatalf("code = %q, want %d characters", res.Room.Code, store.CodeLength)
	}
	if res.Room.Mode != defaultMode {
		t.Fatalf("mode = %d, want default %d", res.Room.Mode, defaultMode)
	}
	if res.Host == nil || res.Host.Token == "" {
		t.Fatalf("host grant = %+v, want a signed token", res.Host)
	}
	if len(res.Room.Players) != 1 || !res.Room.Players[0].You {
		t.Fatalf("players = %+v, want the host marked You", res.Room.Players)
	}

	// The token is mirrored into a cookie for EventSource clients.
	var seatCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == getEnv("COOKIE_NAME", "digitclash_token") {
			seatCookie = c
		}
	}
	if seatCookie == nil || seatCookie.Value != res.Host.Token {
		t.Fatal("seat cookie missing or does not match the grant token")
	}
}

func TestCreateRoomRejectsBadMode(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/rooms", "", createRoomReq{Mode: 9})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), game.ErrInvalidDigitMode.Code) {
		t.Fatalf("body = %q, want code %q", rec.Body.String(), game.ErrInvalidDigitMode.Code)
	}
}

func TestJoinRoomErrors(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/rooms/ZZZZZZ/join", "", joinRoomReq{Name: "ben"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown room status = %d, want 404: %s", rec.Code, rec.Body)
	}

	create := doJSON(t, srv, http.MethodPost, "/rooms", "", createRoomReq{Password: "hunter2"})
	var created createRoomRes
	decodeJSON(t, create, &created)

	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+created.Room.Code+"/join", "", joinRoomReq{Name: "ben", Password: "nope"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong password status = %d, want 403: %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodPost, "/rooms/"+created.Room.Code+"/join", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	srv.Router().ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest || !strings.Contains(res.Body.String(), "bad_json") {
		t.Fatalf("bad json = %d %q", res.Code, res.Body.String())
	}
}

func TestPlayFlow(t *testing.T) {
	srv := newTestServer(t)
	s := seatTwo(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/secret", s.host.Token, setSecretReq{Secret: "1234"})
	var afterFirst setSecretRes
	decodeJSON(t, rec, &afterFirst)
	if afterFirst.Room.Phase != game.PhaseSettingSecret {
		t.Fatalf("phase = %s, want %s", afterFirst.Room.Phase, game.PhaseSettingSecret)
	}

	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/secret", s.guest.Token, setSecretReq{Secret: "5678"})
	var afterBoth setSecretRes
	decodeJSON(t, rec, &afterBoth)
	if afterBoth.Room.Phase != game.PhaseActive {
		t.Fatalf("phase = %s, want %s", afterBoth.Room.Phase, game.PhaseActive)
	}
	if afterBoth.Room.TurnPlayerID != s.host.PlayerID {
		t.Fatalf("first turn = %s, want host %s", afterBoth.Room.TurnPlayerID, s.host.PlayerID)
	}

	// Guest cannot move first.
	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/guess", s.guest.Token, guessReq{Guess: "1234"})
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), game.ErrNotYourTurn.Code) {
		t.Fatalf("out of turn = %d %q", rec.Code, rec.Body.String())
	}

	// Host probes, then the guest's winning counter never comes: the host
	// cracks 5678 outright.
	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/guess", s.host.Token, guessReq{Guess: "5679", Seq: 1})
	var probe guessRes
	decodeJSON(t, rec, &probe)
	if probe.Result.Hits != 3 || probe.Result.Crack {
		t.Fatalf("probe = %+v, want 3 hits and no crack", probe.Result)
	}

	// A resubmit of the same move conflicts instead of double-scoring.
	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/guess", s.host.Token, guessReq{Guess: "5679", Seq: 1})
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), game.ErrStaleSequence.Code) {
		t.Fatalf("stale retry = %d %q", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/guess", s.guest.Token, guessReq{Guess: "1239", Seq: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("guest guess status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/guess", s.host.Token, guessReq{Guess: "8765", Seq: 3})
	var won guessRes
	decodeJSON(t, rec, &won)
	if !won.Result.Crack || won.Result.Phase != game.PhaseFinished {
		t.Fatalf("winning move = %+v, want crack and finished", won.Result)
	}
	if won.Room.WinnerID != s.host.PlayerID {
		t.Fatalf("winner = %s, want %s", won.Room.WinnerID, s.host.PlayerID)
	}
}

func TestSeatAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	s := seatTwo(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/secret", "", setSecretReq{Secret: "1234"})
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "unauthorized") {
		t.Fatalf("missing token = %d %q", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/secret", "not-a-jwt", setSecretReq{Secret: "1234"})
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "invalid_token") {
		t.Fatalf("garbage token = %d %q", rec.Code, rec.Body.String())
	}

	// A seat in one room opens no doors in another.
	other := seatTwo(t, srv)
	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+other.code+"/secret", s.host.Token, setSecretReq{Secret: "1234"})
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "wrong_room") {
		t.Fatalf("wrong room = %d %q", rec.Code, rec.Body.String())
	}
}

func TestSeatCookieAuthenticates(t *testing.T) {
	srv := newTestServer(t)
	s := seatTwo(t, srv)

	body, _ := json.Marshal(setSecretReq{Secret: "1234"})
	req := httptest.NewRequest(http.MethodPost, "/rooms/"+s.code+"/secret", bytes.NewReader(body))
	req.AddCookie(&http.Cookie{Name: getEnv("COOKIE_NAME", "digitclash_token"), Value: s.host.Token})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie auth status = %d: %s", rec.Code, rec.Body)
	}
}

func TestSnapshotViews(t *testing.T) {
	srv := newTestServer(t)
	s := seatTwo(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/rooms/"+s.code+"/snapshot", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous snapshot status = %d: %s", rec.Code, rec.Body)
	}
	var anon events.Snapshot
	decodeJSON(t, rec, &anon)
	for _, p := range anon.Players {
		if p.You {
			t.Fatalf("anonymous view marks %s as You", p.ID)
		}
	}
	if anon.PollIntervalMs == 0 {
		t.Fatal("snapshot missing poll interval hint")
	}

	rec = doJSON(t, srv, http.MethodGet, "/rooms/"+s.code+"/snapshot", s.guest.Token, nil)
	var mine events.Snapshot
	decodeJSON(t, rec, &mine)
	var you, avatar string
	for _, p := range mine.Players {
		if p.You {
			you = p.ID
			avatar = p.Avatar
		}
	}
	if you != s.guest.PlayerID {
		t.Fatalf("You = %q, want %s", you, s.guest.PlayerID)
	}
	if avatar != "owl" {
		t.Fatalf("avatar = %q, want owl", avatar)
	}

	rec = doJSON(t, srv, http.MethodGet, "/rooms/ZZZZZZ/snapshot", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown room status = %d, want 404", rec.Code)
	}
}

func TestRevealOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	s := seatTwo(t, srv)
	startGame(t, srv, s)

	rec := doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/guess", s.host.Token, guessReq{Guess: "8765"})
	if rec.Code != http.StatusOK {
		t.Fatalf("winning guess status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, srv, http.MethodGet, "/rooms/"+s.code+"/reveal", s.guest.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("loser reveal status = %d: %s", rec.Code, rec.Body)
	}
	var rev events.Reveal
	decodeJSON(t, rec, &rev)
	if rev.WinnerSecret != "1234" || rev.WinnerID != s.host.PlayerID {
		t.Fatalf("reveal = %+v, want the host secret", rev)
	}

	rec = doJSON(t, srv, http.MethodGet, "/rooms/"+s.code+"/reveal", s.host.Token, nil)
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), game.ErrRequesterIsWinner.Code) {
		t.Fatalf("winner reveal = %d %q", rec.Code, rec.Body.String())
	}
}

func TestLeaveAndHeartbeat(t *testing.T) {
	srv := newTestServer(t)
	s := seatTwo(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/heartbeat", s.guest.Token, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("heartbeat = %d %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "serverTime") {
		t.Fatalf("heartbeat body missing serverTime: %q", rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/rooms/"+s.code+"/leave", s.guest.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leave status = %d: %s", rec.Code, rec.Body)
	}

	var snap events.Snapshot
	rec = doJSON(t, srv, http.MethodGet, "/rooms/"+s.code+"/snapshot", "", nil)
	decodeJSON(t, rec, &snap)
	if len(snap.Players) != 1 {
		t.Fatalf("players after leave = %d, want 1", len(snap.Players))
	}
}

func TestRecentMatchesWithoutArchive(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/matches/recent", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("body = %q, want []", got)
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "not_found") {
		t.Fatalf("unknown route = %d %q", rec.Code, rec.Body.String())
	}
}

// Streams are exercised with a pre-cancelled request context: the handler
// writes its opening frame, then the relay loop exits immediately.
func streamOnce(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestRoomEventsOpeningFrame(t *testing.T) {
	srv := newTestServer(t)
	s := seatTwo(t, srv)

	rec := streamOnce(t, srv, "/rooms/"+s.code+"/events")
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: "+events.EventRoomState+"\ndata: ") {
		t.Fatalf("body = %q, want an opening room-state frame", body)
	}
	if !strings.Contains(body, s.code) {
		t.Fatalf("opening frame does not mention room %s: %q", s.code, body)
	}

	rec = streamOnce(t, srv, "/rooms/ZZZZZZ/events")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown room stream = %d, want 404", rec.Code)
	}
}

func TestLobbyEventsOpeningFrame(t *testing.T) {
	srv := newTestServer(t)
	s := seatTwo(t, srv)

	rec := streamOnce(t, srv, "/lobby/events")
	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: "+events.EventRoomList+"\ndata: ") {
		t.Fatalf("body = %q, want an opening room-list frame", body)
	}
	if !strings.Contains(body, s.code) {
		t.Fatalf("lobby frame does not list room %s: %q", s.code, body)
	}
}
