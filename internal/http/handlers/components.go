package handlers

import (
	"bytes"
	"net/http"

	"studio/internal/media"
	"studio/internal/storage"
	"studio/internal/studio"
	"studio/pkg/zip"
)

type extractRequest struct {
	Character string `json:"character"`
	Concept   string `json:"concept"`
}

type extractResponse struct {
	SourceKey  string            `json:"source_key"`
	Components map[string]string `json:"components"`
	History    *historySummary   `json:"history,omitempty"`
}

// ComponentsExtract isolates the character, outfits and backgrounds of two
// images. format=zip returns the components as an archive.
func (a *App) ComponentsExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !a.decode(w, r, &req) {
		return
	}
	character, err := decodeImage("character", req.Character)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	concept, err := decodeImage("concept", req.Concept)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	set, err := a.Extractor.Extract(r.Context(), character, concept)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	ordered := make([]media.ImageAsset, 0, len(studio.Fields))
	for _, f := range studio.Fields {
		asset, _ := set.Get(f)
		ordered = append(ordered, asset)
	}
	summary := a.record(r.Context(), "extract", "", imageOutputs(ordered))

	if wantsFormat(r, "zip") {
		entries := make([]zip.Entry, 0, len(studio.Fields))
		for i, f := range studio.Fields {
			entries = append(entries, zip.Entry{Name: string(f) + storage.ExtensionFor(ordered[i].MIMEType), Data: ordered[i].Data})
		}
		var buf bytes.Buffer
		if err := zip.Write(&buf, entries); err != nil {
			a.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", "attachment; filename=components.zip")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}

	resp := extractResponse{SourceKey: set.SourceKey, Components: make(map[string]string, len(studio.Fields)), History: summary}
	for i, f := range studio.Fields {
		resp.Components[string(f)] = dataURI(ordered[i])
	}
	a.json(w, http.StatusOK, resp)
}

type recomposeRequest struct {
	Character   string `json:"character"`
	Outfit      string `json:"outfit"`
	Background  string `json:"background"`
	Instruction string `json:"instruction"`
	Count       int    `json:"count"`
}

type failureDTO struct {
	Variant int    `json:"variant"`
	Error   string `json:"error"`
}

type recomposeResponse struct {
	Images      []string        `json:"images"`
	Failures    []failureDTO    `json:"failures,omitempty"`
	Instruction string          `json:"instruction"`
	History     *historySummary `json:"history,omitempty"`
}

func (a *App) ComponentsRecompose(w http.ResponseWriter, r *http.Request) {
	var req recomposeRequest
	if !a.decode(w, r, &req) {
		return
	}
	var sel studio.Selection
	var err error
	for _, in := range []struct {
		name    string
		payload string
		dst     *media.ImageAsset
	}{
		{"character", req.Character, &sel.Character},
		{"outfit", req.Outfit, &sel.Outfit},
		{"background", req.Background, &sel.Background},
	} {
		if *in.dst, err = decodeImage(in.name, in.payload); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	sel.Instruction = req.Instruction
	if req.Count <= 0 {
		req.Count = 1
	}

	res, err := a.Recomposer.Recompose(r.Context(), sel, req.Count)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.variants(w, r, "recompose", req.Instruction, res)
}

// variants writes a multi-variant result and records its images.
func (a *App) variants(w http.ResponseWriter, r *http.Request, mode, prompt string, res *studio.RecompositionResult) {
	resp := recomposeResponse{
		Images:      dataURIs(res.Images),
		Instruction: res.Instruction,
		History:     a.record(r.Context(), mode, prompt, imageOutputs(res.Images)),
	}
	for _, f := range res.Failures {
		resp.Failures = append(resp.Failures, failureDTO{Variant: f.Variant, Error: f.Err.Error()})
	}
	a.json(w, http.StatusOK, resp)
}
