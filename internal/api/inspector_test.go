package api

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/rpgng/internal/config"
	"github.com/annel0/rpgng/internal/world"
)

func newInspector(t *testing.T) (*Inspector, *world.World) {
	t.Helper()
	w, err := world.New(config.Default(), world.WithSpriteLoader(func(string) (image.Image, error) {
		return image.NewGray(image.Rect(0, 0, 8, 8)), nil
	}))
	require.NoError(t, err)

	_, err = w.ApplyScene(&world.Scene{
		Items: []world.SceneItem{{Name: "coin", Value: 1}},
		Entities: []world.SceneEntity{
			{Name: "hero", Transform: &world.SceneTransform{X: 2, Y: 3}, Inventory: []string{"coin"}},
			{Name: "tree", Sprite: &world.SceneSprite{Path: "tree.png"}},
		},
	}, "")
	require.NoError(t, err)

	in, err := NewInspector(w, Config{})
	require.NoError(t, err)
	return in, w
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func get(t *testing.T, in *Inspector, path string) (int, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	in.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func TestInspector_Health(t *testing.T) {
	in, w := newInspector(t)
	rec := httptest.NewRecorder()
	in.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), w.ID)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestInspector_Entities(t *testing.T) {
	in, _ := newInspector(t)

	code, resp := get(t, in, "/api/entities")
	require.Equal(t, http.StatusOK, code)
	var list []EntityView
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "hero", list[0].Name)
	assert.Contains(t, list[0].Components, "transform")
	assert.Contains(t, list[0].Components, "inventory")
	assert.Contains(t, list[1].Components, "sprite")

	code, resp = get(t, in, "/api/entities/1")
	require.Equal(t, http.StatusOK, code)
	var hero EntityView
	require.NoError(t, json.Unmarshal(resp.Data, &hero))
	assert.Equal(t, uint32(1), hero.ID)
	tr := hero.Components["transform"].(map[string]interface{})
	assert.Equal(t, 2.0, tr["x"])

	code, resp = get(t, in, "/api/entities/by-name/tree")
	require.Equal(t, http.StatusOK, code)
	var tree EntityView
	require.NoError(t, json.Unmarshal(resp.Data, &tree))
	assert.Equal(t, uint32(2), tree.ID)

	code, resp = get(t, in, "/api/entities/99")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)

	code, _ = get(t, in, "/api/entities/by-name/nobody")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, in, "/api/entities/kitty")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestInspector_StatsAndItems(t *testing.T) {
	in, _ := newInspector(t)

	code, resp := get(t, in, "/api/stats")
	require.Equal(t, http.StatusOK, code)
	var stats struct {
		Entities struct {
			Count      int            `json:"count"`
			Components map[string]int `json:"components"`
		} `json:"entities"`
		SpritesLive int                    `json:"sprites_live"`
		Process     map[string]interface{} `json:"process"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 2, stats.Entities.Count)
	assert.Equal(t, 1, stats.Entities.Components["sprite"])
	assert.Equal(t, 1, stats.SpritesLive)
	assert.Contains(t, stats.Process, "uptime")

	code, resp = get(t, in, "/api/items")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"name":"coin"`)
}

func TestInspector_Metrics(t *testing.T) {
	in, _ := newInspector(t)
	get(t, in, "/api/entities")

	rec := httptest.NewRecorder()
	in.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "rpgng_entities")
	assert.Contains(t, body, "inspector_http_request_duration_seconds")
}

func TestProcessMetrics_Uptime(t *testing.T) {
	pm := NewProcessMetrics()
	assert.Equal(t, "0s", pm.Uptime())
	snap := pm.Snapshot()
	assert.Contains(t, snap, "goroutines")
}
