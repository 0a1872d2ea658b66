package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"proctorhub/internal/common/cache"
	"proctorhub/internal/integrity"
	"proctorhub/internal/monitor/repository"
	"proctorhub/internal/monitor/service"
	"proctorhub/internal/realtime"
	"proctorhub/pkg/utils/response"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *service.MonitorService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(mr.Addr())
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	signer, err := integrity.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}

	cfg := service.DefaultConfig()
	svc := service.NewMonitorService(
		cfg,
		signer,
		service.NewTrustEngine(),
		service.NewLivenessTracker(cfg.HeartbeatTolerance),
		repository.NewEventRepository(c),
		nil,
		realtime.NewRouter(realtime.NewHub()),
		nil,
	)

	r := gin.New()
	mc := NewMonitorController(svc, nil, nil)
	mc.RegisterRoutes(r.Group("/api/v1/monitor"))
	return r, svc
}

func postJSON(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHeartbeatOmittedFlagsAreNotViolations(t *testing.T) {
	r, svc := newTestRouter(t)
	if _, err := svc.InitSession("att-1", "user-1", "exam-1", service.DeviceInfo{
		Browser: "firefox", OS: "linux", WebcamFound: true, MonitorCount: 1,
	}); err != nil {
		t.Fatalf("init session: %v", err)
	}

	// a minimal beat that only names the attempt stays clean
	w := postJSON(t, r, "/api/v1/monitor/heartbeat", `{"attempt_id":"att-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var env response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data, ok := env.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %v", env.Data)
	}
	if v, ok := data["violations"].([]interface{}); ok && len(v) > 0 {
		t.Fatalf("violations = %v, want none for omitted flags", v)
	}
	if data["trust_score"].(float64) != 100 {
		t.Fatalf("trust score = %v, want untouched 100", data["trust_score"])
	}
}

func TestHeartbeatExplicitFalseFlagsStillFlag(t *testing.T) {
	r, svc := newTestRouter(t)
	if _, err := svc.InitSession("att-1", "user-1", "exam-1", service.DeviceInfo{
		Browser: "firefox", OS: "linux", WebcamFound: true, MonitorCount: 1,
	}); err != nil {
		t.Fatalf("init session: %v", err)
	}

	w := postJSON(t, r, "/api/v1/monitor/heartbeat",
		`{"attempt_id":"att-1","tab_visible":false,"fullscreen":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var env response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := env.Data.(map[string]interface{})
	v, _ := data["violations"].([]interface{})
	if len(v) != 2 {
		t.Fatalf("violations = %v, want tab and fullscreen findings", v)
	}
}
