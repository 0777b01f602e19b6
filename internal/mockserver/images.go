package mockserver

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"sync"
)

const imageSize = 256

// imageStore remembers prompts of generated images and renders them on demand.
type imageStore struct {
	mu      sync.Mutex
	prompts map[string]string
}

func newImageStore() *imageStore {
	return &imageStore{prompts: make(map[string]string)}
}

func (s *imageStore) put(id, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[id] = prompt
}

func (s *imageStore) get(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prompt, ok := s.prompts[id]
	return prompt, ok
}

// renderPNG draws a deterministic gradient seeded by prompt.
func renderPNG(prompt string) ([]byte, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	seed := h.Sum32()
	base := color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: uint8(seed >> 16), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, imageSize, imageSize))
	for y := 0; y < imageSize; y++ {
		for x := 0; x < imageSize; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: base.R ^ uint8(x),
				G: base.G ^ uint8(y),
				B: base.B ^ uint8((x+y)/2),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
