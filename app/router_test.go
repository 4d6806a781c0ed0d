package app

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sergioamr/img-api/config"
	"github.com/sergioamr/img-api/db"
	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/diskcache"
	"github.com/sergioamr/img-api/internal/lists"
	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/internal/model"
	"github.com/sergioamr/img-api/internal/service"
	"github.com/sergioamr/img-api/internal/storage"
	"github.com/sergioamr/img-api/pkg/security"

	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	v "github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router http.Handler
	deps   *internal.Deps
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	vp := v.New()
	config.SetDefaults(vp)
	vp.Set("security.rate_limit", 0)
	vp.Set("security.jwt_secret", "test-secret")
	cfg, err := config.Load(vp)
	require.NoError(t, err)

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	blobs := storage.NewLocal(afero.NewMemMapFs())
	queue := service.NewJobQueue(1, 4)
	queue.StartWorkerPool()
	t.Cleanup(queue.Stop)

	d := &internal.Deps{
		Config:   cfg,
		DB:       gdb,
		Media:    media.NewStore(gdb, blobs),
		Lists:    lists.New(gdb),
		Cache:    diskcache.New(afero.NewMemMapFs(), diskcache.WithSourceStat(blobs.ModTime)),
		JobQueue: queue,
		Tokens:   security.NewTokenIssuer(cfg.Security.JWTSecret, time.Hour),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := &testServer{
		router: Routes(ctx, d, persist.NewMemoryStore(time.Minute)),
		deps:   d,
		tokens: map[string]string{},
	}

	for _, name := range []string{"alice", "bob"} {
		u := &model.User{ID: "u-" + name, Username: name, CreatedAt: 1}
		require.NoError(t, gdb.Create(u).Error)

		tok, err := d.Tokens.Issue(u)
		require.NoError(t, err)
		s.tokens[name] = tok
	}

	return s
}

func (s *testServer) do(t *testing.T, method, target, as string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[as])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, target, as, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return s.do(t, http.MethodPost, target, as, buf.Bytes(), mw.FormDataContentType())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func pngOf(t *testing.T, c color.Color) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// uploadOne uploads data as user and returns the new media ID.
func (s *testServer) uploadOne(t *testing.T, as string, data []byte) string {
	t.Helper()

	w := s.upload(t, "/api/media/upload", as, "photo.png", data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	files := decode(t, w)["media_files"].([]any)
	require.Len(t, files, 1)
	return files[0].(map[string]any)["media_id"].(string)
}

func TestUploadDeduplicates(t *testing.T) {
	s := newTestServer(t)
	data := pngOf(t, color.White)

	first := s.uploadOne(t, "alice", data)
	second := s.uploadOne(t, "alice", data)
	assert.Equal(t, first, second)

	var stats model.Stats
	require.NoError(t, s.deps.DB.Where("user_id = ?", "u-alice").First(&stats).Error)
	assert.Equal(t, 1, stats.UploadedFiles)
	assert.Equal(t, int64(len(data)), stats.UsedStorage)
}

func TestUploadRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	w := s.upload(t, "/api/media/upload", "alice", "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = s.upload(t, "/api/media/upload", "alice", "fake.png", []byte("not an image at all"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(t, "/api/media/upload", "", "photo.png", pngOf(t, color.White))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadFromWebCreatesAnonymousUser(t *testing.T) {
	s := newTestServer(t)

	w := s.upload(t, "/api/media/upload_from_web", "", "photo.png", pngOf(t, color.Black))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Contains(t, w.Header().Get("Set-Cookie"), "auth_token=")

	resp := decode(t, w)
	assert.NotEmpty(t, resp["token"])
	assert.True(t, strings.HasPrefix(resp["username"].(string), "anon_"))

	file := resp["media_files"].([]any)[0].(map[string]any)
	assert.Equal(t, true, file["is_public"])

	// anonymous uploads are public
	w = s.do(t, http.MethodGet, "/api/media/get/"+file["media_id"].(string), "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadFromWebRejectedKeepsNoUser(t *testing.T) {
	s := newTestServer(t)

	countAnon := func() int64 {
		var n int64
		require.NoError(t, s.deps.DB.Model(&model.User{}).Where("is_anon = ?", true).Count(&n).Error)
		return n
	}

	w := s.upload(t, "/api/media/upload_from_web", "", "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Empty(t, w.Header().Get("Set-Cookie"))

	w = s.upload(t, "/api/media/upload_from_web", "", "fake.png", []byte("not an image at all"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Set-Cookie"))

	w = s.do(t, http.MethodPost, "/api/media/upload_from_web", "", []byte("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, countAnon())

	var stats int64
	require.NoError(t, s.deps.DB.Model(&model.Stats{}).Count(&stats).Error)
	assert.Zero(t, stats)
}

func TestGetEnforcesPrivacy(t *testing.T) {
	s := newTestServer(t)
	data := pngOf(t, color.White)
	id := s.uploadOne(t, "alice", data)

	w := s.do(t, http.MethodGet, "/api/media/get/"+id, "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/media/get/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/media/get/"+id, "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, data, w.Body.Bytes())

	w = s.do(t, http.MethodPost, "/api/media/posts/"+id+"/set/public", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/media/get/"+id, "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetConvertsOnTheFly(t *testing.T) {
	s := newTestServer(t)
	id := s.uploadOne(t, "alice", pngOf(t, color.White))

	w := s.do(t, http.MethodGet, "/api/media/get/"+id+".jpg", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	_, err := jpeg.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)

	w = s.do(t, http.MethodGet, "/api/media/get/"+id+".webp", "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMissingFileTombstonesRecord(t *testing.T) {
	s := newTestServer(t)
	id := s.uploadOne(t, "alice", pngOf(t, color.White))

	rec, err := s.deps.Media.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, s.deps.Media.Blobs().Remove(context.Background(), rec.FilePath))

	w := s.do(t, http.MethodGet, "/api/media/info/"+id, "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err = s.deps.Media.Get(context.Background(), id)
	assert.ErrorIs(t, err, media.ErrNotFound)
}

func TestPostsAreCachedPerIdentity(t *testing.T) {
	s := newTestServer(t)
	s.uploadOne(t, "alice", pngOf(t, color.White))

	w := s.do(t, http.MethodGet, "/api/media/posts/alice", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Len(t, decode(t, w)["media_files"], 1)

	w = s.do(t, http.MethodGet, "/api/media/posts/alice", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, true, decode(t, w)["cached"])

	// private media is hidden from everybody else, whose views are never cached
	w = s.do(t, http.MethodGet, "/api/media/posts/alice", "bob", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Len(t, decode(t, w)["media_files"], 0)

	// uploading purges the owner's entries
	s.uploadOne(t, "alice", pngOf(t, color.Black))

	w = s.do(t, http.MethodGet, "/api/media/posts/alice", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Len(t, decode(t, w)["media_files"], 2)

	w = s.do(t, http.MethodGet, "/api/media/posts/alice?no_cache=1", "alice", nil, "")
	assert.Empty(t, w.Header().Get("X-Cache"))
}

func TestCachedReadsFollowVisibility(t *testing.T) {
	s := newTestServer(t)
	id := s.uploadOne(t, "alice", pngOf(t, color.White))

	w := s.do(t, http.MethodPost, "/api/media/posts/"+id+"/set/public", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodGet, "/api/media/info/"+id, "bob", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Cache"))

		w = s.do(t, http.MethodGet, "/api/media/posts/alice", "bob", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Cache"))
		assert.Len(t, decode(t, w)["media_files"], 1)

		w = s.do(t, http.MethodGet, "/api/media/info/"+id, "", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Cache"))
	}

	w = s.do(t, http.MethodGet, "/api/media/info/"+id, "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	w = s.do(t, http.MethodGet, "/api/media/info/"+id, "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = s.do(t, http.MethodPost, "/api/media/posts/"+id+"/set/private", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/media/info/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/media/posts/alice", "bob", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["media_files"], 0)

	w = s.do(t, http.MethodGet, "/api/media/info/"+id, "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, false, decode(t, w)["media"].(map[string]any)["is_public"])

	w = s.do(t, http.MethodDelete, "/api/media/"+id, "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/media/info/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/media/info/"+id, "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCachedInfoDropsMissingFile(t *testing.T) {
	s := newTestServer(t)
	id := s.uploadOne(t, "alice", pngOf(t, color.White))

	s.do(t, http.MethodGet, "/api/media/info/"+id, "alice", nil, "")
	w := s.do(t, http.MethodGet, "/api/media/info/"+id, "alice", nil, "")
	require.Equal(t, "HIT", w.Header().Get("X-Cache"))

	rec, err := s.deps.Media.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, s.deps.Media.Blobs().Remove(context.Background(), rec.FilePath))

	w = s.do(t, http.MethodGet, "/api/media/info/"+id, "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err = s.deps.Media.Get(context.Background(), id)
	assert.ErrorIs(t, err, media.ErrNotFound)
}

func TestEditAndDelete(t *testing.T) {
	s := newTestServer(t)
	id := s.uploadOne(t, "alice", pngOf(t, color.White))

	w := s.do(t, http.MethodPatch, "/api/media/"+id, "alice", []byte(`{"title":"sunset","tags":["a","b"]}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	m := decode(t, w)["media"].(map[string]any)
	assert.Equal(t, "sunset", m["title"])
	assert.Equal(t, []any{"a", "b"}, m["tags"])

	w = s.do(t, http.MethodPatch, "/api/media/"+id, "alice", []byte(`{"file_path":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/media/"+id, "bob", []byte(`{"title":"mine"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, "/api/media/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, "/api/media/"+id, "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/media/info/"+id, "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListActionsFlagPosts(t *testing.T) {
	s := newTestServer(t)
	id := s.uploadOne(t, "alice", pngOf(t, color.White))

	w := s.do(t, http.MethodPost, "/api/user/media/"+id+"/toggle/likes", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["is_present"])

	w = s.do(t, http.MethodGet, "/api/media/posts/alice", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	item := decode(t, w)["media_files"].([]any)[0].(map[string]any)
	assert.Equal(t, true, item["likes"])

	w = s.do(t, http.MethodPost, "/api/user/media/"+id+"/explode/likes", "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/media_list/get", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["media_lists"], 1)

	w = s.do(t, http.MethodDelete, "/api/media_list/clear_all", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["deleted"])
}

func TestListActionsHidePrivateMedia(t *testing.T) {
	s := newTestServer(t)
	id := s.uploadOne(t, "alice", pngOf(t, color.White))

	w := s.do(t, http.MethodPost, "/api/user/media/"+id+"/toggle/likes", "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	missing := decode(t, w)["error"]

	w = s.do(t, http.MethodPost, "/api/user/media/nosuchmedia/toggle/likes", "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, missing, decode(t, w)["error"])

	w = s.do(t, http.MethodPost, "/api/media/posts/"+id+"/set/public", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/user/media/"+id+"/toggle/likes", "bob", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["is_present"])
}

func TestListCreateAndPrivacy(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/media_list/create", "alice", []byte(`{"name":"trips"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := decode(t, w)["media_list"].(map[string]any)["list_id"].(string)

	w = s.do(t, http.MethodPost, "/api/media_list/create", "alice", []byte(`{"name":"trips"}`), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/media_list/get_by_id/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/api/media_list/"+id, "alice", []byte(`{"is_public":true}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/media_list/get_by_id/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPatch, "/api/media_list/"+id, "alice", []byte(`{"is_public":false}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/media_list/get_by_id/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, "/api/media_list/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestContentSections(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/content/profile/get", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{}, decode(t, w)["profile"])

	w = s.do(t, http.MethodPost, "/api/content/about/update", "alice",
		[]byte(`{"bio":"<b>hi</b><script>alert(1)</script>"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "<b>hi</b>", decode(t, w)["about"].(map[string]any)["bio"])

	w = s.do(t, http.MethodGet, "/api/content/about/get", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"bio": "<b>hi</b>"}, decode(t, w)["about"])

	w = s.do(t, http.MethodPost, "/api/content/about/update", "alice",
		[]byte(`{"motto":"carpe diem"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	// the update above purged the cached copy
	w = s.do(t, http.MethodGet, "/api/content/about/get", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, map[string]any{"bio": "<b>hi</b>", "motto": "carpe diem"}, decode(t, w)["about"])

	// bob never sees alice's section
	w = s.do(t, http.MethodGet, "/api/content/about/get", "bob", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{}, decode(t, w)["about"])

	big, err := json.Marshal(map[string]string{"bio": strings.Repeat("x", 16385)})
	require.NoError(t, err)
	w = s.do(t, http.MethodPost, "/api/content/about/update", "alice", big, "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUserStats(t *testing.T) {
	s := newTestServer(t)
	data := pngOf(t, color.White)
	s.uploadOne(t, "alice", data)

	w := s.do(t, http.MethodGet, "/api/user/stats", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	stats := decode(t, w)["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["uploadedFiles"])
	assert.Equal(t, float64(len(data)), stats["usedStorage"])
}
