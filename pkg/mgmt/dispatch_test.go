package mgmt

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "net/url"
    "strings"
    "testing"

    "github.com/clusterkit/go-clustermgmt/pkg/runtime"
)

// fakeRuntime records every call so tests can assert exactly which commands
// reached the runtime.
type fakeRuntime struct {
    snap      runtime.Snapshot
    snapshots int
    joins     []runtime.Address
    leaves    []runtime.Address
    downs     []runtime.Address
}

func (f *fakeRuntime) Snapshot() runtime.Snapshot { f.snapshots++; return f.snap }
func (f *fakeRuntime) Join(a runtime.Address) error {
    f.joins = append(f.joins, a)
    return nil
}
func (f *fakeRuntime) Leave(a runtime.Address) error {
    f.leaves = append(f.leaves, a)
    return nil
}
func (f *fakeRuntime) Down(a runtime.Address) error {
    f.downs = append(f.downs, a)
    return nil
}

// preparableRuntime additionally carries the full-shutdown capability.
type preparableRuntime struct {
    fakeRuntime
    prepared int
    err      error
}

func (p *preparableRuntime) PrepareFullShutdown() error {
    p.prepared++
    return p.err
}

func newTestHandler(t *testing.T, rt runtime.Runtime) *Handler {
    t.Helper()
    h, err := NewHandler(HandlerOptions{Runtime: rt})
    if err != nil {
        t.Fatalf("NewHandler: %v", err)
    }
    return h
}

func doForm(t *testing.T, h http.Handler, method, path string, form url.Values) *httptest.ResponseRecorder {
    t.Helper()
    var body *strings.Reader
    if form != nil {
        body = strings.NewReader(form.Encode())
    } else {
        body = strings.NewReader("")
    }
    req := httptest.NewRequest(method, path, body)
    if form != nil {
        req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
    }
    rec := httptest.NewRecorder()
    h.ServeHTTP(rec, req)
    return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
    t.Helper()
    var m Message
    if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
        t.Fatalf("decode message: %v (%s)", err, rec.Body.String())
    }
    return m.Message
}

func TestGetMembers(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()}
    rec := doForm(t, newTestHandler(t, rt).Routes(), http.MethodGet, "/cluster/members", nil)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d", rec.Code)
    }
    var got ClusterMembers
    if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if len(got.Members) != 4 || got.SelfNode != "clstr://demo@10.0.0.1:2552" {
        t.Fatalf("unexpected view: %+v", got)
    }
}

func TestPostMembersJoin(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()}
    routes := newTestHandler(t, rt).Routes()

    rec := doForm(t, routes, http.MethodPost, "/cluster/members",
        url.Values{"address": {"clstr://demo@10.0.0.9:2552"}})
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
    }
    if msg := decodeMessage(t, rec); msg != "Joining clstr://demo@10.0.0.9:2552" {
        t.Fatalf("message = %q", msg)
    }
    if len(rt.joins) != 1 || rt.joins[0].HostPort() != "10.0.0.9:2552" {
        t.Fatalf("joins = %v", rt.joins)
    }

    // Bare host:port inherits the local system name.
    rec = doForm(t, routes, http.MethodPost, "/cluster/members",
        url.Values{"address": {"10.0.0.8:2552"}})
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d", rec.Code)
    }
    if rt.joins[1].System != "demo" {
        t.Fatalf("system not inherited: %+v", rt.joins[1])
    }
}

func TestPostMembersMalformedAddress(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()}
    rec := doForm(t, newTestHandler(t, rt).Routes(), http.MethodPost, "/cluster/members",
        url.Values{"address": {"not-an-address"}})
    if rec.Code != http.StatusBadRequest {
        t.Fatalf("status = %d", rec.Code)
    }
    if len(rt.joins) != 0 {
        t.Fatalf("malformed address must not reach the runtime: %v", rt.joins)
    }
}

func TestGetSingleMember(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()}
    routes := newTestHandler(t, rt).Routes()

    rec := doForm(t, routes, http.MethodGet, "/cluster/members/10.0.0.2:2552", nil)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
    }
    var mv MemberView
    if err := json.Unmarshal(rec.Body.Bytes(), &mv); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if mv.Node != "clstr://demo@10.0.0.2:2552" || mv.Status != "up" {
        t.Fatalf("unexpected member: %+v", mv)
    }

    // Fully-qualified form through an encoded path segment.
    rec = doForm(t, routes, http.MethodGet, "/cluster/members/clstr:%2F%2Fdemo@10.0.0.2:2552", nil)
    if rec.Code != http.StatusOK {
        t.Fatalf("encoded lookup status = %d: %s", rec.Code, rec.Body.String())
    }
}

func TestGetSingleMemberNotFoundEchoesQuery(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()}
    rec := doForm(t, newTestHandler(t, rt).Routes(), http.MethodGet, "/cluster/members/10.9.9.9:1", nil)
    if rec.Code != http.StatusNotFound {
        t.Fatalf("status = %d", rec.Code)
    }
    if msg := decodeMessage(t, rec); msg != "Member [10.9.9.9:1] not found" {
        t.Fatalf("message = %q", msg)
    }
}

func TestDeleteMemberLeaves(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()}
    rec := doForm(t, newTestHandler(t, rt).Routes(), http.MethodDelete, "/cluster/members/10.0.0.2:2552", nil)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d", rec.Code)
    }
    if msg := decodeMessage(t, rec); msg != "Leaving clstr://demo@10.0.0.2:2552" {
        t.Fatalf("message = %q", msg)
    }
    if len(rt.leaves) != 1 {
        t.Fatalf("leaves = %v", rt.leaves)
    }
}

func TestPutMemberDown(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()}
    rec := doForm(t, newTestHandler(t, rt).Routes(), http.MethodPut, "/cluster/members/10.0.0.2:2552",
        url.Values{"operation": {"Down"}})
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
    }
    if msg := decodeMessage(t, rec); msg != "Downing clstr://demo@10.0.0.2:2552" {
        t.Fatalf("message = %q", msg)
    }
    if len(rt.downs) != 1 || rt.downs[0].HostPort() != "10.0.0.2:2552" {
        t.Fatalf("exactly one down call expected: %v", rt.downs)
    }
    if len(rt.leaves) != 0 || len(rt.joins) != 0 {
        t.Fatalf("no other runtime calls expected")
    }
}

func TestPutMemberUnsupportedOperation(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()}
    routes := newTestHandler(t, rt).Routes()
    // Case matters for member operations: "down" is not "Down".
    for _, op := range []string{"down", "LEAVE", "restart", ""} {
        rec := doForm(t, routes, http.MethodPut, "/cluster/members/10.0.0.2:2552",
            url.Values{"operation": {op}})
        if rec.Code != http.StatusBadRequest {
            t.Fatalf("op %q: status = %d", op, rec.Code)
        }
        if msg := decodeMessage(t, rec); msg != "Operation not supported" {
            t.Fatalf("op %q: message = %q", op, msg)
        }
    }
    if len(rt.downs)+len(rt.leaves)+len(rt.joins) != 0 {
        t.Fatalf("unsupported operations must trigger zero runtime calls")
    }
}

func TestPutClusterPrepareFullShutdown(t *testing.T) {
    rt := &preparableRuntime{fakeRuntime: fakeRuntime{snap: testSnapshot()}}
    routes := newTestHandler(t, rt).Routes()
    // Case-insensitive for this one operation.
    for _, op := range []string{"prepare-for-full-shutdown", "Prepare-For-Full-Shutdown"} {
        rec := doForm(t, routes, http.MethodPut, "/cluster", url.Values{"operation": {op}})
        if rec.Code != http.StatusOK {
            t.Fatalf("op %q: status = %d: %s", op, rec.Code, rec.Body.String())
        }
    }
    if rt.prepared != 2 {
        t.Fatalf("prepared = %d", rt.prepared)
    }
}

func TestPutClusterCapabilityAbsent(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()} // no FullShutdownPreparer
    rec := doForm(t, newTestHandler(t, rt).Routes(), http.MethodPut, "/cluster",
        url.Values{"operation": {"prepare-for-full-shutdown"}})
    if rec.Code != http.StatusBadRequest {
        t.Fatalf("status = %d", rec.Code)
    }
    if msg := decodeMessage(t, rec); msg != "prepare for full shutdown is not supported by this cluster runtime" {
        t.Fatalf("message = %q", msg)
    }
}

func TestPutClusterCapabilityUnsupportedError(t *testing.T) {
    rt := &preparableRuntime{fakeRuntime: fakeRuntime{snap: testSnapshot()}, err: runtime.ErrUnsupported}
    rec := doForm(t, newTestHandler(t, rt).Routes(), http.MethodPut, "/cluster",
        url.Values{"operation": {"prepare-for-full-shutdown"}})
    if rec.Code != http.StatusBadRequest {
        t.Fatalf("status = %d", rec.Code)
    }
    if msg := decodeMessage(t, rec); msg != "prepare for full shutdown is not supported by this cluster runtime" {
        t.Fatalf("message = %q", msg)
    }
}

func TestPutClusterUnknownOperation(t *testing.T) {
    rt := &preparableRuntime{fakeRuntime: fakeRuntime{snap: testSnapshot()}}
    rec := doForm(t, newTestHandler(t, rt).Routes(), http.MethodPut, "/cluster",
        url.Values{"operation": {"reboot"}})
    if rec.Code != http.StatusBadRequest {
        t.Fatalf("status = %d", rec.Code)
    }
    if msg := decodeMessage(t, rec); msg != "Operation not supported" {
        t.Fatalf("message = %q", msg)
    }
    if rt.prepared != 0 {
        t.Fatalf("prepare must not run for unknown operations")
    }
}

func TestReadOnlyRoutes(t *testing.T) {
    rt := &fakeRuntime{snap: testSnapshot()}
    ro := newTestHandler(t, rt).ReadOnlyRoutes()

    rec := doForm(t, ro, http.MethodGet, "/cluster/members", nil)
    if rec.Code != http.StatusOK {
        t.Fatalf("GET members status = %d", rec.Code)
    }
    rec = doForm(t, ro, http.MethodGet, "/cluster/members/10.0.0.2:2552", nil)
    if rec.Code != http.StatusOK {
        t.Fatalf("GET member status = %d", rec.Code)
    }

    before := rt.snapshots
    rec = doForm(t, ro, http.MethodDelete, "/cluster/members/10.0.0.2:2552", nil)
    if rec.Code != http.StatusMethodNotAllowed {
        t.Fatalf("DELETE on read-only mount: status = %d", rec.Code)
    }
    if rt.snapshots != before {
        t.Fatalf("read-only 405 must fail before resolution (snapshot reads %d -> %d)", before, rt.snapshots)
    }
    if len(rt.leaves) != 0 {
        t.Fatalf("read-only mount must not mutate the runtime")
    }

    rec = doForm(t, ro, http.MethodPut, "/cluster/members/10.0.0.2:2552",
        url.Values{"operation": {"Down"}})
    if rec.Code != http.StatusMethodNotAllowed {
        t.Fatalf("PUT on read-only mount: status = %d", rec.Code)
    }
    rec = doForm(t, ro, http.MethodPost, "/cluster/members", url.Values{"address": {"10.0.0.9:2552"}})
    if rec.Code != http.StatusMethodNotAllowed {
        t.Fatalf("POST on read-only mount: status = %d", rec.Code)
    }
}
