package handlers

import (
	"net/http"

	"studio/internal/history"
)

type imageGenerateRequest struct {
	Prompt      string `json:"prompt"`
	Count       int    `json:"count"`
	AspectRatio string `json:"aspect_ratio"`
}

func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	images, err := a.Images.GenerateImages(r.Context(), req.Prompt, req.Count, req.AspectRatio)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"images":  dataURIs(images),
		"history": a.record(r.Context(), "generate", req.Prompt, imageOutputs(images)),
	})
}

type backgroundRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

func (a *App) BackgroundsGenerate(w http.ResponseWriter, r *http.Request) {
	var req backgroundRequest
	if !a.decode(w, r, &req) {
		return
	}
	image, err := a.Images.GenerateBackground(r.Context(), req.Prompt, req.AspectRatio)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"image":   dataURI(image),
		"history": a.record(r.Context(), "background", req.Prompt, []history.Output{history.ImageOutput(image)}),
	})
}
