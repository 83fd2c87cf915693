package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"studio/internal/media"
	"studio/internal/providers/prompt"
)

type poseRequest struct {
	Image string `json:"image"`
}

// PoseDescribe returns a short pose and emotion description of an image,
// suitable as a recomposition instruction.
func (a *App) PoseDescribe(w http.ResponseWriter, r *http.Request) {
	var req poseRequest
	if !a.decode(w, r, &req) {
		return
	}
	image, err := decodeImage("image", req.Image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	desc, err := a.Describer.DescribePose(r.Context(), image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"description": desc})
}

type suggestRequest struct {
	Mode   string   `json:"mode"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Count  int      `json:"count"`
}

func (a *App) PromptsSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Mode) == "" {
		req.Mode = "image"
	}
	images := make([]media.ImageAsset, 0, len(req.Images))
	for i, payload := range req.Images {
		img, err := decodeImage(fmt.Sprintf("images[%d]", i), payload)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		images = append(images, img)
	}
	items, err := a.Describer.Suggest(r.Context(), prompt.SuggestRequest{Mode: req.Mode, Prompt: req.Prompt, Images: images, Count: req.Count})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"suggestions": items})
}

func (a *App) PromptsList(w http.ResponseWriter, r *http.Request) {
	items, err := a.History.Prompts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []string{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

type rememberPromptRequest struct {
	Prompt string `json:"prompt"`
}

func (a *App) PromptsRemember(w http.ResponseWriter, r *http.Request) {
	var req rememberPromptRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.History.RememberPrompt(r.Context(), req.Prompt); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) PromptsClear(w http.ResponseWriter, r *http.Request) {
	if err := a.History.ClearPrompts(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

