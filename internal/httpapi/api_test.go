package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"escala/internal/adapters/roster"
	"escala/internal/blob"
	"escala/internal/core"
)

const adminPhone = "11900000000"

type harness struct {
	t   *testing.T
	svc *core.Service
	api *API
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	svc := core.NewInMemoryService(nil, core.WithAdminPhone(adminPhone), core.WithBlobStore(blob.NewMemory()))
	deps := Deps{Service: svc, RateLimit: RateLimitConfig{PerMinute: 600, Burst: 100}}
	if mutate != nil {
		mutate(&deps)
	}
	api := New(deps)
	t.Cleanup(api.Close)
	return &harness{t: t, svc: svc, api: api}
}

func (h *harness) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	h.api.ServeHTTP(w, req)
	return w
}

func (h *harness) identify(name, phone string) (*http.Cookie, string) {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/session", identifyRequest{Name: name, PhoneNumber: phone}, nil)
	if w.Code != http.StatusOK {
		h.t.Fatalf("identify %s: %d %s", name, w.Code, w.Body.String())
	}
	var resp struct {
		Volunteer core.Volunteer `json:"volunteer"`
	}
	decode(h.t, w, &resp)
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			return c, resp.Volunteer.ID
		}
	}
	h.t.Fatalf("no session cookie set")
	return nil, ""
}

func (h *harness) createService(admin *http.Cookie, slots ...string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/services", core.ServiceInput{Date: "2026-03-08", Time: "18:00", CustomSlots: len(slots) > 0, SlotNames: slots}, admin)
	if w.Code != http.StatusCreated {
		h.t.Fatalf("create service: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Service struct {
			ID string `json:"id"`
		} `json:"service"`
	}
	decode(h.t, w, &resp)
	return resp.Service.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Kind string `json:"kind"`
	}
	decode(t, w, &resp)
	return resp.Kind
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newHarness(t, func(d *Deps) { d.Gatherer = reg })
	rec, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("metrics recorder: %v", err)
	}
	rec.Observe(context.Background(), "identify_volunteer", true, time.Millisecond)

	if w := h.do(http.MethodGet, "/healthz", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	w := h.do(http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "escala_operations_total") {
		t.Fatalf("metrics: %d %s", w.Code, w.Body.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	if w := h.do(http.MethodGet, "/api/session", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}
	cookie, id := h.identify("Ana", "(11) 98888-7777")
	w := h.do(http.MethodGet, "/api/session", nil, cookie)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), id) {
		t.Fatalf("session: %d %s", w.Code, w.Body.String())
	}

	again, againID := h.identify("Ana Outra", "11988887777")
	if againID != id || again == nil {
		t.Fatalf("identify by known phone must reuse the volunteer")
	}

	w = h.do(http.MethodDelete, "/api/session", nil, cookie)
	if w.Code != http.StatusNoContent {
		t.Fatalf("sign out: %d", w.Code)
	}
	cleared := w.Result().Cookies()
	if len(cleared) == 0 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected cookie cleared, got %+v", cleared)
	}

	tampered := &http.Cookie{Name: sessionCookie, Value: cookie.Value + "x"}
	if w := h.do(http.MethodGet, "/api/session", nil, tampered); w.Code != http.StatusUnauthorized {
		t.Fatalf("tampered cookie must not authenticate, got %d", w.Code)
	}
}

func TestAdminGate(t *testing.T) {
	h := newHarness(t, nil)
	servo, _ := h.identify("Bruno", "11977776666")
	w := h.do(http.MethodPost, "/api/services", core.ServiceInput{Date: "2026-03-08", Time: "18:00"}, servo)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for servo, got %d", w.Code)
	}
	if w := h.do(http.MethodGet, "/api/volunteers", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 anonymous, got %d", w.Code)
	}
	admin, _ := h.identify("Coordenação", "(11) 90000-0000")
	if w := h.do(http.MethodGet, "/api/volunteers", nil, admin); w.Code != http.StatusOK {
		t.Fatalf("expected admin access, got %d %s", w.Code, w.Body.String())
	}
}

func TestCreateServiceWithoutSlotsUsesCatalog(t *testing.T) {
	h := newHarness(t, nil)
	for _, name := range []string{"Recepção", "Café"} {
		if _, _, err := h.svc.AddGlobalSlot(context.Background(), name); err != nil {
			t.Fatalf("add global slot: %v", err)
		}
	}
	admin, _ := h.identify("Coordenação", adminPhone)
	w := h.do(http.MethodPost, "/api/services", []byte(`{"date":" 2026-03-08 ","time":"18:00"}`), admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create service: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Service struct {
			Date      string   `json:"date"`
			SlotNames []string `json:"slot_names"`
		} `json:"service"`
	}
	decode(t, w, &resp)
	if resp.Service.Date != "2026-03-08" {
		t.Fatalf("date not trimmed: %q", resp.Service.Date)
	}
	if strings.Join(resp.Service.SlotNames, ",") != "Recepção,Café" {
		t.Fatalf("expected catalog slots, got %v", resp.Service.SlotNames)
	}

	w = h.do(http.MethodPost, "/api/services", []byte(`{"date":"2026-03-09","time":"18:00","custom_slots":true}`), admin)
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"slot_names":[]`) {
		t.Fatalf("expected empty slot list: %d %s", w.Code, w.Body.String())
	}
}

func TestRegistrationFlowAndErrorMapping(t *testing.T) {
	h := newHarness(t, nil)
	admin, _ := h.identify("Coordenação", adminPhone)
	serviceID := h.createService(admin, "Som", "Recepção")
	ana, _ := h.identify("Ana", "11988887777")
	bruno, _ := h.identify("Bruno", "11977776666")

	path := "/api/services/" + serviceID + "/assignments"
	w := h.do(http.MethodPost, path, registerRequest{SlotName: "Som"}, ana)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		Assignment core.Assignment `json:"assignment"`
	}
	decode(t, w, &created)

	w = h.do(http.MethodPost, path, registerRequest{SlotName: "Som"}, bruno)
	if w.Code != http.StatusConflict || errorKind(t, w) != "slot_occupied" {
		t.Fatalf("expected slot_occupied, got %d %s", w.Code, w.Body.String())
	}
	w = h.do(http.MethodPost, path, registerRequest{SlotName: "Recepção"}, ana)
	if w.Code != http.StatusConflict || errorKind(t, w) != "already_assigned" {
		t.Fatalf("expected already_assigned, got %d %s", w.Code, w.Body.String())
	}
	w = h.do(http.MethodPost, path, registerRequest{SlotName: "Bateria"}, bruno)
	if w.Code != http.StatusBadRequest || errorKind(t, w) != "invalid_slot" {
		t.Fatalf("expected invalid_slot, got %d %s", w.Code, w.Body.String())
	}
	w = h.do(http.MethodPost, path, registerRequest{SlotName: "Recepção", VolunteerID: created.Assignment.VolunteerID}, bruno)
	if w.Code != http.StatusForbidden {
		t.Fatalf("servo may not book others, got %d", w.Code)
	}

	unregister := path + "/" + created.Assignment.ID
	if w := h.do(http.MethodDelete, unregister, nil, bruno); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 removing someone else's slot, got %d", w.Code)
	}

	w = h.do(http.MethodPut, "/api/services/"+serviceID+"/open", openRequest{Open: false}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("close service: %d %s", w.Code, w.Body.String())
	}
	w = h.do(http.MethodPost, path, registerRequest{SlotName: "Recepção"}, bruno)
	if w.Code != http.StatusConflict || errorKind(t, w) != "closed" {
		t.Fatalf("expected closed, got %d %s", w.Code, w.Body.String())
	}

	w = h.do(http.MethodPut, unregister, reassignRequest{SlotName: "Recepção"}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("reassign on closed service: %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodDelete, unregister, nil, ana); w.Code != http.StatusNoContent {
		t.Fatalf("unregister own: %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodDelete, unregister, nil, ana); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second unregister, got %d", w.Code)
	}
}

func TestCascadingDeletesRequireConfirm(t *testing.T) {
	h := newHarness(t, nil)
	admin, _ := h.identify("Coordenação", adminPhone)
	serviceID := h.createService(admin, "Som")

	if w := h.do(http.MethodDelete, "/api/services/"+serviceID, nil, admin); w.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected 428 without confirm, got %d", w.Code)
	}
	if w := h.do(http.MethodDelete, "/api/services/"+serviceID+"?confirm=true", nil, admin); w.Code != http.StatusNoContent {
		t.Fatalf("delete with confirm: %d %s", w.Code, w.Body.String())
	}
	if _, ok := h.svc.GetService(serviceID); ok {
		t.Fatalf("service still present")
	}
}

func TestCatalogRenameWithEscapedSlot(t *testing.T) {
	h := newHarness(t, nil)
	admin, _ := h.identify("Coordenação", adminPhone)
	if w := h.do(http.MethodPost, "/api/catalog", slotRequest{Name: "Recepção"}, admin); w.Code != http.StatusCreated {
		t.Fatalf("add slot: %d %s", w.Code, w.Body.String())
	}
	h.createService(admin)

	w := h.do(http.MethodPut, "/api/catalog/"+url.PathEscape("Recepção"), slotRequest{Name: "Boas Vindas"}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("rename: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Report core.PropagationReport `json:"report"`
	}
	decode(t, w, &resp)
	if len(resp.Report.UpdatedServiceIDs) != 1 {
		t.Fatalf("expected one service updated, got %+v", resp.Report)
	}
	if got := h.svc.Catalog(); len(got) != 1 || got[0] != "Boas Vindas" {
		t.Fatalf("unexpected catalog %v", got)
	}

	w = h.do(http.MethodDelete, "/api/catalog/"+url.PathEscape("Boas Vindas")+"?confirm=true", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", w.Code, w.Body.String())
	}
}

func TestRosterCSVAndShare(t *testing.T) {
	h := newHarness(t, nil)
	admin, _ := h.identify("Coordenação", adminPhone)
	serviceID := h.createService(admin, "Som")
	ana, _ := h.identify("Ana", "11988887777")
	if w := h.do(http.MethodPost, "/api/services/"+serviceID+"/assignments", registerRequest{SlotName: "Som"}, ana); w.Code != http.StatusCreated {
		t.Fatalf("register: %d", w.Code)
	}

	w := h.do(http.MethodGet, "/api/services/"+serviceID+"/roster.csv", nil, ana)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != roster.CSVContentType {
		t.Fatalf("roster csv: %d %v", w.Code, w.Header())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "escala_2026-03-08.csv") {
		t.Fatalf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte{0xEF, 0xBB, 0xBF}) || !strings.Contains(w.Body.String(), "Som,Ana,2026-03-08,18:00") {
		t.Fatalf("unexpected csv %q", w.Body.String())
	}

	if w := h.do(http.MethodGet, "/api/roster.csv", nil, ana); w.Code != http.StatusForbidden {
		t.Fatalf("full roster is admin only, got %d", w.Code)
	}
	if w := h.do(http.MethodGet, "/api/roster.csv", nil, admin); w.Code != http.StatusOK {
		t.Fatalf("full roster: %d", w.Code)
	}

	w = h.do(http.MethodGet, "/api/services/"+serviceID+"/share", nil, nil)
	var resp struct {
		Share roster.Share `json:"share"`
	}
	decode(t, w, &resp)
	if !strings.HasPrefix(resp.Share.URL, "https://wa.me/?text=") || !strings.Contains(resp.Share.Text, "*Som*: Ana") {
		t.Fatalf("unexpected share %+v", resp.Share)
	}
}

func TestShareToSlack(t *testing.T) {
	var mu sync.Mutex
	var posted string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		posted = body.Text
		mu.Unlock()
	}))
	defer hook.Close()

	h := newHarness(t, func(d *Deps) { d.Slack = roster.NewSlackNotifier(hook.URL, hook.Client()) })
	admin, _ := h.identify("Coordenação", adminPhone)
	serviceID := h.createService(admin, "Som")
	if w := h.do(http.MethodPost, "/api/services/"+serviceID+"/share/slack", nil, admin); w.Code != http.StatusOK {
		t.Fatalf("slack share: %d %s", w.Code, w.Body.String())
	}
	mu.Lock()
	defer mu.Unlock()
	if !strings.HasPrefix(posted, "*ESCALA DE SERVIÇO - 08/03/2026 (18:00)*") {
		t.Fatalf("unexpected slack text %q", posted)
	}
}

func TestRegistrationRateLimit(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.RateLimit = RateLimitConfig{PerMinute: 1, Burst: 1} })
	admin, _ := h.identify("Coordenação", adminPhone)
	serviceID := h.createService(admin, "Som", "Luz")
	ana, _ := h.identify("Ana", "11988887777")
	path := "/api/services/" + serviceID + "/assignments"

	if w := h.do(http.MethodPost, path, registerRequest{SlotName: "Som"}, ana); w.Code != http.StatusCreated {
		t.Fatalf("first registration: %d", w.Code)
	}
	w := h.do(http.MethodPost, path, registerRequest{SlotName: "Luz"}, ana)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", w.Code)
	}
	if h.api.limiter.size() != 1 {
		t.Fatalf("expected one limiter bucket, got %d", h.api.limiter.size())
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAvatarUploadAndFetch(t *testing.T) {
	h := newHarness(t, nil)
	ana, anaID := h.identify("Ana", "11988887777")
	bruno, _ := h.identify("Bruno", "11977776666")
	path := "/api/volunteers/" + anaID + "/avatar"

	if w := h.do(http.MethodPut, path, pngBytes(t), bruno); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign avatar, got %d", w.Code)
	}
	if w := h.do(http.MethodPut, path, []byte("not an image"), ana); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid image, got %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodPut, path, pngBytes(t), ana); w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	w := h.do(http.MethodGet, path, nil, bruno)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("fetch: %d %v", w.Code, w.Header())
	}
	if w := h.do(http.MethodDelete, path, nil, ana); w.Code != http.StatusOK {
		t.Fatalf("remove: %d", w.Code)
	}
	if w := h.do(http.MethodGet, path, nil, ana); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after removal, got %d", w.Code)
	}
}

func TestVolunteerAdminEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	admin, _ := h.identify("Coordenação", adminPhone)
	w := h.do(http.MethodPost, "/api/volunteers", core.VolunteerInput{Name: "Ana", PhoneNumber: "11988887777"}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Volunteer core.Volunteer `json:"volunteer"`
	}
	decode(t, w, &resp)

	w = h.do(http.MethodPost, "/api/volunteers", core.VolunteerInput{Name: "Outra", PhoneNumber: "(11) 98888-7777"}, admin)
	if w.Code != http.StatusConflict || errorKind(t, w) != "duplicate" {
		t.Fatalf("expected duplicate phone, got %d %s", w.Code, w.Body.String())
	}

	name, role := "Ana Souza", "ADMIN"
	w = h.do(http.MethodPatch, "/api/volunteers/"+resp.Volunteer.ID, volunteerPatch{Name: &name, Role: &role}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	got, _ := h.svc.GetVolunteer(resp.Volunteer.ID)
	if got.Name != "Ana Souza" || !got.IsAdmin() {
		t.Fatalf("unexpected volunteer %+v", got)
	}

	if w := h.do(http.MethodDelete, "/api/volunteers/"+resp.Volunteer.ID+"?confirm=true", nil, admin); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := h.do(http.MethodGet, "/api/volunteers/"+resp.Volunteer.ID, nil, admin); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestExportEndpoints(t *testing.T) {
	var worker *roster.Worker
	h := newHarness(t, nil)
	worker = roster.NewWorker(h.svc, blob.NewMemory())
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })
	h.api = New(Deps{Service: h.svc, Exports: worker})
	t.Cleanup(h.api.Close)

	admin, _ := h.identify("Coordenação", adminPhone)
	h.createService(admin, "Som")

	w := h.do(http.MethodPost, "/api/exports", exportRequest{}, admin)
	if w.Code != http.StatusAccepted {
		t.Fatalf("enqueue: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Export roster.ExportRecord `json:"export"`
	}
	decode(t, w, &resp)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, ok := worker.GetExport(resp.Export.ID)
		if ok && rec.Status == roster.ExportStatusSucceeded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("export did not finish: %+v", rec)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w := h.do(http.MethodGet, "/api/exports/"+resp.Export.ID, nil, admin); w.Code != http.StatusOK {
		t.Fatalf("get export: %d", w.Code)
	}
	w = h.do(http.MethodGet, "/api/exports/"+resp.Export.ID+"/download", nil, admin)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "(sem voluntários)") {
		t.Fatalf("download: %d %q", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodGet, "/api/exports/missing", nil, admin); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown export, got %d", w.Code)
	}
}
