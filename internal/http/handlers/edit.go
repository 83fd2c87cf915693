package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"studio/internal/history"
	"studio/internal/media"
	"studio/internal/studio"
)

// decodeOptional is decodeImage for fields that may be left empty.
func decodeOptional(field, payload string) (media.ImageAsset, error) {
	if strings.TrimSpace(payload) == "" {
		return media.ImageAsset{}, nil
	}
	return decodeImage(field, payload)
}

func decodeImages(field string, payloads []string) ([]media.ImageAsset, error) {
	out := make([]media.ImageAsset, 0, len(payloads))
	for i, p := range payloads {
		img, err := decodeImage(fmt.Sprintf("%s[%d]", field, i), p)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

type analyzeImageRequest struct {
	Image string `json:"image"`
}

// ImagesAnalyze describes an image as a prompt that could recreate it. The
// description is kept in history as text.
func (a *App) ImagesAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeImageRequest
	if !a.decode(w, r, &req) {
		return
	}
	image, err := decodeImage("image", req.Image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	desc, err := a.Editor.Analyze(r.Context(), image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"description": desc,
		"history":     a.record(r.Context(), "analyze", "", []history.Output{history.TextOutput(desc)}),
	})
}

type editRequest struct {
	Prompt     string   `json:"prompt"`
	Characters []string `json:"characters"`
	Product    string   `json:"product"`
	Background string   `json:"background"`
	Count      int      `json:"count"`
}

func (a *App) ImagesEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !a.decode(w, r, &req) {
		return
	}
	var in studio.EditRequest
	var err error
	if in.Characters, err = decodeImages("characters", req.Characters); err != nil {
		a.fail(w, r, err)
		return
	}
	if in.Product, err = decodeOptional("product", req.Product); err != nil {
		a.fail(w, r, err)
		return
	}
	if in.Background, err = decodeOptional("background", req.Background); err != nil {
		a.fail(w, r, err)
		return
	}
	in.Prompt = req.Prompt
	res, err := a.Editor.Edit(r.Context(), in, req.Count)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.variants(w, r, "edit", req.Prompt, res)
}

type magicRequest struct {
	Action string `json:"action"`
	Image  string `json:"image"`
	Mask   string `json:"mask"`
	Prompt string `json:"prompt"`
	Filter string `json:"filter"`
	Count  int    `json:"count"`
}

func (a *App) ImagesMagic(w http.ResponseWriter, r *http.Request) {
	var req magicRequest
	if !a.decode(w, r, &req) {
		return
	}
	image, err := decodeImage("image", req.Image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	mask, err := decodeOptional("mask", req.Mask)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Editor.Magic(r.Context(), studio.MagicRequest{
		Action: studio.MagicAction(req.Action),
		Image:  image,
		Mask:   mask,
		Prompt: req.Prompt,
		Filter: req.Filter,
		Count:  req.Count,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.variants(w, r, "magic", req.Prompt, res)
}

type restoreRequest struct {
	Image        string   `json:"image"`
	Template     string   `json:"template"`
	Enhancements []string `json:"enhancements"`
	Gender       string   `json:"gender"`
	Age          string   `json:"age"`
	Exclusion    string   `json:"exclusion"`
}

func (a *App) ImagesRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !a.decode(w, r, &req) {
		return
	}
	image, err := decodeImage("image", req.Image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.Editor.Restore(r.Context(), studio.RestoreRequest{
		Image:        image,
		Template:     req.Template,
		Enhancements: req.Enhancements,
		Gender:       req.Gender,
		Age:          req.Age,
		Exclusion:    req.Exclusion,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"image":   dataURI(out),
		"history": a.record(r.Context(), "restore", req.Template, []history.Output{history.ImageOutput(out)}),
	})
}

type productShotRequest struct {
	Product string `json:"product"`
	Scene   string `json:"scene"`
	Count   int    `json:"count"`
}

func (a *App) ImagesProductShot(w http.ResponseWriter, r *http.Request) {
	var req productShotRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := decodeImage("product", req.Product)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Editor.ProductShot(r.Context(), product, req.Scene, req.Count)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.variants(w, r, "product-shot", req.Scene, res)
}

type travelRequest struct {
	Characters []string `json:"characters"`
	Outfit     string   `json:"outfit"`
	Location   string   `json:"location"`
	Details    string   `json:"details"`
	Count      int      `json:"count"`
}

func (a *App) ImagesTravel(w http.ResponseWriter, r *http.Request) {
	var req travelRequest
	if !a.decode(w, r, &req) {
		return
	}
	characters, err := decodeImages("characters", req.Characters)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Editor.Travel(r.Context(), studio.TravelRequest{
		Characters: characters,
		Outfit:     req.Outfit,
		Location:   req.Location,
		Details:    req.Details,
	}, req.Count)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.variants(w, r, "travel", req.Location, res)
}

type conceptRequest struct {
	Character string `json:"character"`
	Concept   string `json:"concept"`
	Count     int    `json:"count"`
}

func (a *App) ImagesConcept(w http.ResponseWriter, r *http.Request) {
	var req conceptRequest
	if !a.decode(w, r, &req) {
		return
	}
	character, err := decodeImage("character", req.Character)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Editor.Concept(r.Context(), character, req.Concept, req.Count)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.variants(w, r, "concept", req.Concept, res)
}
