package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	apikeydomain "github.com/smallbiznis/usagetrack/internal/apikey/domain"
	"github.com/smallbiznis/usagetrack/internal/auth/session"
	catalogdomain "github.com/smallbiznis/usagetrack/internal/catalog/domain"
	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/observability/metrics"
	"github.com/smallbiznis/usagetrack/internal/tracking/builtin"
	"github.com/smallbiznis/usagetrack/internal/tracking/classifier"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
	"github.com/smallbiznis/usagetrack/internal/tracking/extractor"
	"github.com/smallbiznis/usagetrack/internal/tracking/identity"
	"github.com/smallbiznis/usagetrack/internal/tracking/recorder"
	"github.com/smallbiznis/usagetrack/internal/tracking/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "interceptor-secret"

type stubCatalog struct {
	catalogdomain.Service
	datasets map[string]string
}

func (c stubCatalog) ResolveDatasetID(_ context.Context, ref string) (string, bool, error) {
	id, ok := c.datasets[ref]
	return id, ok, nil
}

func (c stubCatalog) ResolveOrganizationID(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

type stubTokens map[string]*apikeydomain.APIToken

func (s stubTokens) Lookup(_ context.Context, id string) (*apikeydomain.APIToken, error) {
	if t, ok := s[id]; ok {
		return t, nil
	}
	return nil, apikeydomain.ErrNotFound
}

type fixture struct {
	db          *gorm.DB
	interceptor *Interceptor
	promReg     *prometheus.Registry
	engine      *gin.Engine
}

func newFixture(t *testing.T, tracking config.TrackingConfig) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.UsageRecord{}))
	t.Cleanup(func() { _ = db.Migrator().DropTable(&domain.UsageRecord{}) })

	if tracking.RecordTimeout == 0 {
		tracking.RecordTimeout = time.Second
	}
	cfg := config.Config{
		Tracking: tracking,
		APIToken: config.APITokenConfig{HeaderName: "Authorization", JWTSecret: testSecret, JWTAlgorithm: "HS256"},
	}

	log := zap.NewNop()
	promReg := prometheus.NewRegistry()
	tm := metrics.NewTrackingMetrics(promReg, metrics.Config{})

	reg := extension.NewRegistry(log)
	require.NoError(t, reg.Register(builtin.New(builtin.Params{
		Catalog: stubCatalog{datasets: map[string]string{"census-2020": "ds-0001"}},
		Log:     log,
	})))

	cls, err := classifier.New(classifier.Params{Registry: reg, Log: log, Metrics: tm})
	require.NoError(t, err)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	it := New(Params{
		Log:        log,
		Classifier: cls,
		Resolver: identity.New(identity.Params{
			Config: cfg,
			Log:    log,
			Tokens: stubTokens{"jti-1": {ID: "jti-1", Name: "harvester", UserID: "token-user"}},
		}),
		Extractor: extractor.New(extractor.Params{Registry: reg, Log: log}),
		Recorder: recorder.New(recorder.Params{
			DB:       db,
			Log:      log,
			Config:   cfg,
			Repo:     repository.Provide(),
			Registry: reg,
			GenID:    node,
			Tracking: tm,
		}),
		Registry: reg,
		Metrics:  tm,
	})

	engine := gin.New()
	engine.Use(it.GinMiddleware())
	engine.Any("/*path", func(c *gin.Context) {
		status := http.StatusOK
		switch c.GetHeader("X-Test-Status") {
		case "302":
			status = http.StatusFound
		case "404":
			status = http.StatusNotFound
		case "500":
			status = http.StatusInternalServerError
		}
		c.Status(status)
	})

	return &fixture{db: db, interceptor: it, promReg: promReg, engine: engine}
}

func (f *fixture) records(t *testing.T) []domain.UsageRecord {
	t.Helper()
	var out []domain.UsageRecord
	require.NoError(t, f.db.Order("timestamp asc").Find(&out).Error)
	return out
}

func (f *fixture) outcome(t *testing.T, state, reason string) float64 {
	t.Helper()
	families, err := f.promReg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "usagetrack_tracking_outcomes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["state"] == state && labels["reason"] == reason {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(session.WithUser(req.Context(), userID))
}

func bearer(t *testing.T, jti string) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"jti": jti}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func TestGin_RecordsDatasetViewWithResolvedID(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	w := serve(f.engine, asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1"))
	assert.Equal(t, http.StatusOK, w.Code)

	recs := f.records(t)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.TrackingTypeUI, rec.TrackingType)
	assert.Equal(t, domain.SubTypeShow, rec.TrackingSubType)
	assert.Equal(t, "dataset", domain.Deref(rec.ObjectType))
	assert.Equal(t, "ds-0001", domain.Deref(rec.ObjectID))
	assert.Equal(t, "u-1", domain.Deref(rec.UserID))
	assert.Nil(t, rec.TokenName)
	assert.Equal(t, "GET", rec.Extras["method"])
	assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateRecorded, "none"))
}

func TestGin_ErrorStatusIsSkipped(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	for _, status := range []string{"404", "500"} {
		req := asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1")
		req.Header.Set("X-Test-Status", status)
		serve(f.engine, req)
	}

	assert.Empty(t, f.records(t))
	assert.Equal(t, float64(2), f.outcome(t, metrics.TrackingStateSkipped, ReasonErrorStatus))
}

func TestGin_RedirectOnlyTrackedForResourceDownload(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	req := asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1")
	req.Header.Set("X-Test-Status", "302")
	serve(f.engine, req)
	assert.Empty(t, f.records(t))
	assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateSkipped, ReasonRedirect))

	req = asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020/resource/res-9/download/data.csv", nil), "u-1")
	req.Header.Set("X-Test-Status", "302")
	serve(f.engine, req)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.SubTypeDownload, recs[0].TrackingSubType)
	assert.Equal(t, "res-9", domain.Deref(recs[0].ObjectID))
}

func TestGin_TokenBeatsSession(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/3/action/package_show?id=ds-0001", nil), "session-user")
	req.Header.Set("Authorization", bearer(t, "jti-1"))
	serve(f.engine, req)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "token-user", domain.Deref(recs[0].UserID))
	assert.Equal(t, "harvester", domain.Deref(recs[0].TokenName))
	assert.Equal(t, domain.TrackingTypeAPI, recs[0].TrackingType)
	assert.Equal(t, domain.SubTypeShow, recs[0].TrackingSubType)
	assert.Equal(t, "ds-0001", domain.Deref(recs[0].ObjectID))
}

func TestGin_PackageCreate(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/3/action/package_create", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Authorization", bearer(t, "jti-1"))
	serve(f.engine, req)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TrackingTypeAPI, recs[0].TrackingType)
	assert.Equal(t, domain.SubTypeEdit, recs[0].TrackingSubType)
	assert.Equal(t, "dataset", domain.Deref(recs[0].ObjectType))
	assert.Equal(t, "POST", recs[0].Extras["method"])
}

func TestGin_PackageSearch(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	serve(f.engine, asUser(httptest.NewRequest(http.MethodGet, "/api/3/action/package_search?q=census", nil), "u-1"))

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TrackingTypeAPI, recs[0].TrackingType)
	assert.Equal(t, domain.SubTypeSearch, recs[0].TrackingSubType)
	assert.Equal(t, domain.ObjectTypeDataset, domain.Deref(recs[0].ObjectType))
	assert.Nil(t, recs[0].ObjectID)
	assert.Equal(t, "census", recs[0].Extras["q"])
	assert.Equal(t, http.MethodGet, recs[0].Extras[domain.ExtraMethod])
}

func TestGin_UnhandledAPIActionIsSkipped(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	serve(f.engine, asUser(httptest.NewRequest(http.MethodGet, "/api/3/action/tag_list", nil), "u-1"))

	assert.Empty(t, f.records(t))
	assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateSkipped, ReasonExtractFailed))
}

func TestGin_UnknownPathIsSkipped(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	serve(f.engine, asUser(httptest.NewRequest(http.MethodGet, "/about", nil), "u-1"))

	assert.Empty(t, f.records(t))
	assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateSkipped, ReasonNotTrackable))
}

func TestGin_Anonymous(t *testing.T) {
	t.Run("skipped by default", func(t *testing.T) {
		f := newFixture(t, config.TrackingConfig{})
		serve(f.engine, httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil))
		assert.Empty(t, f.records(t))
		assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateSkipped, ReasonAnonymous))
	})

	t.Run("recorded when enabled", func(t *testing.T) {
		f := newFixture(t, config.TrackingConfig{TrackAnonymous: true})
		serve(f.engine, httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil))
		recs := f.records(t)
		require.Len(t, recs, 1)
		assert.Nil(t, recs[0].UserID)
	})
}

func TestTrack_DoubleInvocationRecordsOnce(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	req := asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1")
	ctx, _ := EnsureMarker(req.Context())
	req = req.WithContext(ctx)

	first := f.interceptor.Track(ctx, req, http.StatusOK)
	second := f.interceptor.Track(ctx, req, http.StatusOK)

	assert.True(t, first.Recorded())
	assert.Equal(t, ReasonAlreadyTracked, second.Reason)
	assert.Len(t, f.records(t), 1)
}

func TestTrack_SkipLeavesMarkerOpen(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	req := asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1")
	ctx, marker := EnsureMarker(req.Context())
	req = req.WithContext(ctx)

	out := f.interceptor.Track(ctx, req, http.StatusNotFound)
	assert.Equal(t, ReasonErrorStatus, out.Reason)
	assert.False(t, marker.Tracked())

	out = f.interceptor.Track(ctx, req, http.StatusOK)
	assert.True(t, out.Recorded())
	assert.True(t, marker.Tracked())
}

func TestBothFrontDoorsRecordOnce(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})
	h := f.interceptor.Middleware(f.engine)

	serve(h, asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1"))

	assert.Len(t, f.records(t), 1)
	assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateRecorded, "none"))
	assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateSkipped, ReasonAlreadyTracked))
}

type countingRecorder struct {
	calls atomic.Int32
	err   error
}

func (r *countingRecorder) Record(context.Context, domain.Actor, domain.Payload) (*domain.UsageRecord, error) {
	r.calls.Add(1)
	return nil, r.err
}

func (*countingRecorder) TrackAnonymous() bool { return false }

func TestBothFrontDoors_FailedInsertNotRetried(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})
	rec := &countingRecorder{err: context.DeadlineExceeded}

	it := *f.interceptor
	it.recorder = rec
	engine := gin.New()
	engine.Use(it.GinMiddleware())
	engine.GET("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(it.Middleware(engine), asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1"))

	assert.Equal(t, int32(1), rec.calls.Load())
	assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateFailed, ReasonRecordFailed))
	assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateSkipped, ReasonAlreadyTracked))
}

func TestTrack_FailedRunClosesMarker(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})
	rec := &countingRecorder{err: errors.New("connection reset")}
	it := *f.interceptor
	it.recorder = rec

	req := asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1")
	ctx, marker := EnsureMarker(req.Context())
	req = req.WithContext(ctx)

	out := it.Track(ctx, req, http.StatusOK)
	assert.Equal(t, ReasonRecordFailed, out.Reason)
	assert.True(t, marker.Tracked())

	out = it.Track(ctx, req, http.StatusOK)
	assert.Equal(t, ReasonAlreadyTracked, out.Reason)
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestHTTPMiddleware_StandaloneRecords(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})
	h := f.interceptor.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	w := serve(h, asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1"))
	assert.Equal(t, "ok", w.Body.String())
	assert.Len(t, f.records(t), 1)
}

func TestHTTPMiddleware_SeesErrorStatus(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})
	h := f.interceptor.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))

	serve(h, asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1"))
	assert.Empty(t, f.records(t))
	assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateSkipped, ReasonErrorStatus))
}

type panicResolver struct{}

func (panicResolver) Resolve(context.Context, *http.Request) domain.Actor { panic("boom") }

type failingRecorder struct{ err error }

func (r failingRecorder) Record(context.Context, domain.Actor, domain.Payload) (*domain.UsageRecord, error) {
	return nil, r.err
}

func (failingRecorder) TrackAnonymous() bool { return true }

func TestTrack_FailuresNeverReachTheResponse(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	t.Run("panic", func(t *testing.T) {
		it := *f.interceptor
		it.resolver = panicResolver{}
		engine := gin.New()
		engine.Use(it.GinMiddleware())
		engine.GET("/dataset/:id", func(c *gin.Context) { c.String(http.StatusOK, "body") })

		w := serve(engine, httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "body", w.Body.String())
		assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateFailed, ReasonPanic))
	})

	t.Run("store error", func(t *testing.T) {
		it := *f.interceptor
		it.recorder = failingRecorder{err: errors.New("connection refused")}
		req := httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil)
		out := it.Track(req.Context(), req, http.StatusOK)
		assert.Equal(t, metrics.TrackingStateFailed, out.State)
		assert.Equal(t, ReasonRecordFailed, out.Reason)
	})

	t.Run("duplicate id", func(t *testing.T) {
		it := *f.interceptor
		it.recorder = failingRecorder{err: fmt.Errorf("%w: UNIQUE constraint failed: usage_records.id", domain.ErrDuplicateRecord)}
		req := httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil)
		out := it.Track(req.Context(), req, http.StatusOK)
		assert.Equal(t, metrics.TrackingStateFailed, out.State)
		assert.Equal(t, ReasonDuplicateID, out.Reason)
		assert.Equal(t, float64(1), f.outcome(t, metrics.TrackingStateFailed, ReasonDuplicateID))
	})

	t.Run("invalid payload", func(t *testing.T) {
		it := *f.interceptor
		it.recorder = failingRecorder{err: domain.ErrMissingTrackingSubType}
		req := httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil)
		out := it.Track(req.Context(), req, http.StatusOK)
		assert.Equal(t, metrics.TrackingStateSkipped, out.State)
		assert.Equal(t, ReasonInvalidPayload, out.Reason)
	})
}

func TestGin_SetsTrackingState(t *testing.T) {
	f := newFixture(t, config.TrackingConfig{})

	var state any
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Next()
		state, _ = c.Get(StateKey)
	})
	engine.Use(f.interceptor.GinMiddleware())
	engine.GET("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(engine, asUser(httptest.NewRequest(http.MethodGet, "/dataset/census-2020", nil), "u-1"))
	assert.Equal(t, metrics.TrackingStateRecorded, state)
}

func TestTrackAuthEvent(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, config.TrackingConfig{})
		out := f.interceptor.TrackAuthEvent(context.Background(), nil, domain.SubTypeLogin, "u-1")
		assert.Equal(t, ReasonEventDisabled, out.Reason)
		assert.Empty(t, f.records(t))
	})

	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, config.TrackingConfig{TrackLogin: true, TrackLogout: true})
		req := httptest.NewRequest(http.MethodPost, "/user/logout", nil)

		assert.True(t, f.interceptor.TrackAuthEvent(context.Background(), req, domain.SubTypeLogin, "u-1").Recorded())
		assert.True(t, f.interceptor.TrackAuthEvent(context.Background(), req, domain.SubTypeLogout, "u-1").Recorded())

		recs := f.records(t)
		require.Len(t, recs, 2)
		for _, rec := range recs {
			assert.Equal(t, domain.TrackingTypeUI, rec.TrackingType)
			assert.Equal(t, "user", domain.Deref(rec.ObjectType))
			assert.Equal(t, "u-1", domain.Deref(rec.ObjectID))
		}
	})

	t.Run("unknown sub type", func(t *testing.T) {
		f := newFixture(t, config.TrackingConfig{TrackLogin: true})
		out := f.interceptor.TrackAuthEvent(context.Background(), nil, "register", "u-1")
		assert.Equal(t, ReasonInvalidPayload, out.Reason)
	})
}
