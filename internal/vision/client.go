// Package vision talks to the upstream detection service that produces
// face regions, landmark points and embeddings from raw image frames.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/jsvoboda/faceguard/internal/landmarks"
)

const defaultVisionURL = "http://localhost:8000"

// Client computes face detections, landmarks and embeddings using the
// vision server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new vision client. A non-positive timeout disables
// the client-side deadline.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultVisionURL
	}
	c := &http.Client{}
	if timeout > 0 {
		c.Timeout = timeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  c,
	}
}

// Face is a single detected face with everything the engine consumes:
// bounding region, 68 landmark points and a 128-dimensional embedding.
type Face struct {
	Region    landmarks.Region
	Landmarks *landmarks.Set
	Embedding []float32
	DetScore  float64
}

// faceDetection represents a single face in the server response
type faceDetection struct {
	FaceIndex int          `json:"face_index"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2]
	Landmarks [][2]float64 `json:"landmarks"`
	Dim       int          `json:"dim"`
	Embedding []float32    `json:"embedding"`
	DetScore  float64      `json:"det_score"`
}

// faceResponse represents the response from the face analysis endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
// The part includes an explicit Content-Type header based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	mimeType := detectMIMEType(imageData)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// AnalyzeFrame detects faces in a frame and returns their regions,
// landmarks and embeddings. An empty slice means no face was found.
func (c *Client) AnalyzeFrame(ctx context.Context, imageData []byte) ([]Face, error) {
	body, err := c.postMultipartImage(ctx, "/analyze/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]Face, 0, len(faceResp.Faces))
	for _, f := range faceResp.Faces {
		face := Face{
			Embedding: f.Embedding,
			DetScore:  f.DetScore,
		}
		if len(f.BBox) == 4 {
			face.Region = landmarks.Region{
				Left:   int(f.BBox[0]),
				Top:    int(f.BBox[1]),
				Right:  int(f.BBox[2]),
				Bottom: int(f.BBox[3]),
			}
		}
		if len(f.Landmarks) > 0 {
			set := &landmarks.Set{Points: make([]landmarks.Point, len(f.Landmarks))}
			for i, p := range f.Landmarks {
				set.Points[i] = landmarks.Point{X: p[0], Y: p[1]}
			}
			face.Landmarks = set
		}
		faces = append(faces, face)
	}

	return faces, nil
}

// ComputeEmbedding detects exactly one face and returns its embedding.
// Used by the enrollment path where a single clear face is required.
func (c *Client) ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	faces, err := c.AnalyzeFrame(ctx, imageData)
	if err != nil {
		return nil, err
	}

	switch len(faces) {
	case 0:
		return nil, errors.New("no face found in image")
	case 1:
	default:
		return nil, fmt.Errorf("expected exactly one face, found %d", len(faces))
	}

	if len(faces[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}

	return faces[0].Embedding, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
