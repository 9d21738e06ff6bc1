package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/portfolio"
	"github.com/roach88/quorum/internal/store"
	"github.com/roach88/quorum/internal/testutil"
)

type apiFixture struct {
	handler  http.Handler
	manager  *portfolio.Memory
	balances *portfolio.Balances
	store    *store.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &apiFixture{
		manager:  portfolio.NewMemory(testutil.OperatorID, testutil.CustodianID),
		balances: portfolio.NewBalances(),
		store:    s,
	}
	owners := testutil.Owners(3)
	log := slogt.New(t)

	op, err := engine.NewOperator(engine.OperatorConfig{
		Owners:             owners,
		RebalanceThreshold: 2,
		RotationThreshold:  2,
		Operator:           testutil.OperatorID,
		Manager:            f.manager,
	}, engine.WithLogger(log), engine.WithSink(s.Journal("operator")))
	require.NoError(t, err)

	cust, err := engine.NewCustodian(engine.CustodianConfig{
		Owners:    owners,
		Threshold: 2,
		Self:      testutil.CustodianID,
		Manager:   f.manager,
		Token:     f.balances,
	}, engine.WithLogger(log), engine.WithSink(s.Journal("methodologist")))
	require.NoError(t, err)

	f.handler = NewHandler(log, Config{Operator: op, Custodian: cust, Store: s})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, who ir.Identity, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if who != "" {
		req.Header.Set(CallerHeader, string(who))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

var rebalanceBody = RebalanceRequest{
	Constituents:   []string{"AAA"},
	Removed:        []string{},
	Weights:        []string{"18446744073709551617"},
	ExecutionBound: "1000",
}

func TestAPI_RebalanceLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "POST", "/v1/rebalance", testutil.OperatorID, rebalanceBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	for _, o := range []ir.Identity{"O1", "O2"} {
		rec = f.do(t, "POST", "/v1/rebalance/confirm", o, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec = f.do(t, "POST", "/v1/rebalance/execute", "O3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Domain string               `json:"domain"`
		Action string               `json:"action"`
		State  engine.OperatorState `json:"state"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "rebalance", resp.Domain)
	assert.Equal(t, "execute", resp.Action)
	assert.True(t, resp.State.Rebalance.Executed)

	applied := f.manager.Rebalances()
	require.Len(t, applied, 1)
	want, _ := new(big.Int).SetString("18446744073709551617", 10)
	assert.Equal(t, want, applied[0].Weights[0])

	rec = f.do(t, "POST", "/v1/rebalance/confirm", "O3", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "STATE_CONFLICT", body.Error.Code)
	assert.Equal(t, "rebalance already executed", body.Error.Message)
	assert.Equal(t, "rebalance", body.Error.Domain)
}

func TestAPI_ErrorStatuses(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/rebalance", testutil.OperatorID, rebalanceBody).Code)

	tests := []struct {
		name   string
		method string
		path   string
		who    ir.Identity
		body   any
		status int
		code   string
	}{
		{"missing caller", "POST", "/v1/rebalance/confirm", "", nil, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"not operator", "POST", "/v1/rebalance", "O1", rebalanceBody, http.StatusForbidden, "AUTHORIZATION"},
		{"not owner", "POST", "/v1/rebalance/confirm", testutil.OutsiderID, nil, http.StatusForbidden, "AUTHORIZATION"},
		{"below quorum", "POST", "/v1/rebalance/execute", "O1", nil, http.StatusUnprocessableEntity, "QUORUM"},
		{"not confirmed", "POST", "/v1/rebalance/revoke", "O1", nil, http.StatusConflict, "STATE_CONFLICT"},
		{"no pending operator", "POST", "/v1/operator/confirm", "O1", nil, http.StatusConflict, "STATE_CONFLICT"},
		{"bad amount", "POST", "/v1/rebalance", testutil.OperatorID, RebalanceRequest{ExecutionBound: "-1"}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown field", "POST", "/v1/operator", "O1", map[string]string{"who": "x"}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"empty candidate", "POST", "/v1/methodologist", "O1", CandidateRequest{}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"not operator bad amount", "POST", "/v1/rebalance", "O1", RebalanceRequest{ExecutionBound: "-1"}, http.StatusForbidden, "AUTHORIZATION"},
		{"outsider unknown field", "POST", "/v1/operator", testutil.OutsiderID, map[string]string{"who": "x"}, http.StatusForbidden, "AUTHORIZATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.who, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestAPI_AuthorizationBeforeBody(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest("POST", "/v1/rebalance", strings.NewReader("{not json"))
	req.Header.Set(CallerHeader, "O1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	body := decodeError(t, rec)
	assert.Equal(t, "AUTHORIZATION", body.Error.Code)
	assert.Equal(t, engine.ReasonNotOperator, body.Error.Message)
	assert.Equal(t, "rebalance", body.Error.Domain)

	req = httptest.NewRequest("POST", "/v1/methodologist", strings.NewReader("[]"))
	req.Header.Set(CallerHeader, string(testutil.OutsiderID))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	body = decodeError(t, rec)
	assert.Equal(t, engine.ReasonNotOwner, body.Error.Message)
	assert.Equal(t, "methodologist", body.Error.Domain)
}

func TestAPI_JournalFailureHaltsGate(t *testing.T) {
	manager := portfolio.NewMemory(testutil.OperatorID, testutil.CustodianID)
	broken := engine.SinkFunc(func(context.Context, ir.Event) error { return errors.New("disk full") })
	log := slogt.New(t)

	op, err := engine.NewOperator(engine.OperatorConfig{
		Owners:             testutil.Owners(3),
		RebalanceThreshold: 1,
		RotationThreshold:  1,
		Operator:           testutil.OperatorID,
		Manager:            manager,
	}, engine.WithLogger(log), engine.WithSink(broken), engine.WithFailStop())
	require.NoError(t, err)
	cust, err := engine.NewCustodian(engine.CustodianConfig{
		Owners:    testutil.Owners(3),
		Threshold: 1,
		Self:      testutil.CustodianID,
		Manager:   manager,
		Token:     portfolio.NewBalances(),
	}, engine.WithLogger(log))
	require.NoError(t, err)
	f := &apiFixture{handler: NewHandler(log, Config{Operator: op, Custodian: cust})}

	rec := f.do(t, "POST", "/v1/rebalance", testutil.OperatorID, rebalanceBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, "JOURNAL", decodeError(t, rec).Error.Code)

	rec = f.do(t, "POST", "/v1/rebalance/confirm", "O1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	body := decodeError(t, rec)
	assert.Equal(t, "JOURNAL", body.Error.Code)
	assert.Contains(t, body.Error.Message, "gate halted")
}

func TestAPI_MethodologistReasonAlias(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/methodologist", "O1", CandidateRequest{Candidate: "M"}).Code)

	rec := f.do(t, "POST", "/v1/methodologist/execute", "O1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "cannot execute new methodologist", body.Error.Message)
	assert.Equal(t, "cannot execute rebalance", body.Error.Alias)

	rec = f.do(t, "POST", "/v1/operator", "O1", CandidateRequest{Candidate: "C"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, "POST", "/v1/operator/execute", "O1", nil)
	assert.Empty(t, decodeError(t, rec).Error.Alias)
}

func TestAPI_UnknownRoutes(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/v1/rebalance/approve", "O1", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, "GET", "/v1/rebalance/confirm", "O1", nil).Code)
}

func TestAPI_EffectFailure(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/operator", "O1", CandidateRequest{Candidate: "next"}).Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/operator/confirm", "O1", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/operator/confirm", "O2", nil).Code)

	f.manager.FailNext(errors.New("manager down"))
	rec := f.do(t, "POST", "/v1/operator/execute", "O3", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "EFFECT", body.Error.Code)
	assert.Contains(t, body.Error.Message, "manager down")
}

func TestAPI_MethodologistRotationAndState(t *testing.T) {
	f := newAPIFixture(t)
	f.balances.Mint(testutil.CustodianID, big.NewInt(77))

	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/methodologist", "O1", CandidateRequest{Candidate: "M"}).Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/methodologist/confirm", "O1", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/methodologist/confirm", "O2", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/methodologist/revoke", "O2", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/methodologist/confirm", "O3", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/methodologist/execute", "O1", nil).Code)

	rec := f.do(t, "GET", "/v1/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state StateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.Equal(t, ir.Identity("M"), state.Methodologist.Methodologist)
	assert.Equal(t, testutil.OperatorID, state.Operator.Operator)

	rec = f.do(t, "GET", "/v1/events?gate=methodologist", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events EventsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	var names []string
	for _, ev := range events.Events {
		names = append(names, ev.Name())
	}
	assert.Equal(t, []string{
		"SubmitNewMethodologist",
		"ConfirmNewMethodologist",
		"ConfirmNewMethodologist",
		"RevokeConfirmationMethodologist",
		"ConfirmNewMethodologist",
		"ExecuteNewMethodologist",
	}, names)
	assert.Equal(t, big.NewInt(77), events.Events[5].Amount)
}

func TestAPI_EventsWithoutStore(t *testing.T) {
	h := NewHandler(slogt.New(t), Config{})
	req := httptest.NewRequest("GET", "/v1/events", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_RequestIDEchoed(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest("GET", "/v1/state", nil)
	req.Header.Set(RequestIDHeader, "req_fixed")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req_fixed", rec.Header().Get(RequestIDHeader))
	assert.True(t, strings.Contains(rec.Body.String(), `"request_id":"req_fixed"`))
}

func TestServer_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(ctx, slogt.New(t), Config{Listener: ln})

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/nothing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	srv.Wait()
}
