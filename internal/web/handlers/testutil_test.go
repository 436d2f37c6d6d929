package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/database"
	"github.com/jsvoboda/faceguard/internal/recognition"
	"github.com/jsvoboda/faceguard/internal/vision"
)

var errVisionDown = errors.New("vision service down")

// testEmbedding creates an embedding with every dimension set to fill.
func testEmbedding(fill float32) []float32 {
	emb := make([]float32, constants.EmbeddingDim)
	for i := range emb {
		emb[i] = fill
	}
	return emb
}

// fakeIdentityStore is an in-memory IdentityStore for handler tests.
type fakeIdentityStore struct {
	identities map[string]*database.StoredIdentity
	saveErr    error
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{identities: make(map[string]*database.StoredIdentity)}
}

func (f *fakeIdentityStore) Get(ctx context.Context, id string) (*database.StoredIdentity, error) {
	return f.identities[id], nil
}

func (f *fakeIdentityStore) GetAllActive(ctx context.Context) ([]database.StoredIdentity, error) {
	var out []database.StoredIdentity
	for _, id := range f.identities {
		if id.Active {
			out = append(out, *id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeIdentityStore) Count(ctx context.Context) (int, error) {
	n := 0
	for _, id := range f.identities {
		if id.Active {
			n++
		}
	}
	return n, nil
}

func (f *fakeIdentityStore) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]database.StoredIdentity, []float64, error) {
	type scored struct {
		identity database.StoredIdentity
		distance float64
	}
	var all []scored
	for _, id := range f.identities {
		if !id.Active {
			continue
		}
		all = append(all, scored{*id, recognition.EuclideanDistance(embedding, id.Embedding)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].distance < all[j].distance })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	identities := make([]database.StoredIdentity, len(all))
	distances := make([]float64, len(all))
	for i, s := range all {
		identities[i] = s.identity
		distances[i] = s.distance
	}
	return identities, distances, nil
}

func (f *fakeIdentityStore) FindDuplicate(ctx context.Context, embedding []float32) (*database.StoredIdentity, float64, error) {
	identities, distances, err := f.FindSimilar(ctx, embedding, constants.DuplicateCheckLimit)
	if err != nil {
		return nil, 0, err
	}
	for i := range identities {
		if distances[i] < constants.DuplicateDistanceThreshold {
			return &identities[i], distances[i], nil
		}
	}
	return nil, 0, nil
}

func (f *fakeIdentityStore) Save(ctx context.Context, identity *database.StoredIdentity) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	stored := *identity
	f.identities[identity.ID] = &stored
	return nil
}

func (f *fakeIdentityStore) Deactivate(ctx context.Context, id string) (bool, error) {
	stored, ok := f.identities[id]
	if !ok || !stored.Active {
		return false, nil
	}
	stored.Active = false
	return true, nil
}

var _ IdentityStore = (*fakeIdentityStore)(nil)

// fakeVision returns canned vision-service responses.
type fakeVision struct {
	faces     []vision.Face
	embedding []float32
	err       error
}

func (f *fakeVision) AnalyzeFrame(ctx context.Context, imageData []byte) ([]vision.Face, error) {
	return f.faces, f.err
}

func (f *fakeVision) ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.embedding == nil {
		return nil, errors.New("no face found in image")
	}
	return f.embedding, nil
}

// fakeAnomalyWriter records events in memory.
type fakeAnomalyWriter struct {
	events []database.StoredAnomalyEvent
	err    error
}

func (f *fakeAnomalyWriter) Record(ctx context.Context, event *database.StoredAnomalyEvent) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	event.ID = int64(len(f.events) + 1)
	f.events = append(f.events, *event)
	return event.ID, nil
}

func (f *fakeAnomalyWriter) Recent(ctx context.Context, limit int) ([]database.StoredAnomalyEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]database.StoredAnomalyEvent, 0, limit)
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.events[i])
	}
	return out, nil
}

var _ database.AnomalyWriter = (*fakeAnomalyWriter)(nil)

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON-encoded body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a request with one file part and optional form values.
func multipartRequest(t *testing.T, method, path, field string, fileData []byte, values map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, "upload.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(fileData); err != nil {
		t.Fatalf("failed to write file data: %v", err)
	}
	for k, v := range values {
		writer.WriteField(k, v)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// makeJPEG encodes a solid-color test image.
func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}
