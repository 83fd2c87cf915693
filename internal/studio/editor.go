package studio

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/media"
)

// TextModel answers an instruction about zero or more images with text.
type TextModel interface {
	GenerateText(ctx context.Context, instruction string, images ...media.ImageAsset) (string, error)
}

const identityDirective = `IDENTITY PRESERVATION DIRECTIVE (NON-NEGOTIABLE):
- SUBJECT: the person in the primary reference image.
- RULE: the identity of the SUBJECT must be preserved with 100% accuracy. This is the highest priority.
- DEFINITION: identity covers facial features, head shape, skin tone, hair style and colour, and body shape.
- EXECUTION: replicate the SUBJECT exactly. Do not reinterpret or stylise the person, even to match a new style. Later edits such as lighting must not compromise the likeness.
- FAILURE CONDITION: any deviation from the SUBJECT's original appearance is a critical failure.`

const productDirective = `PRODUCT INTEGRITY DIRECTIVE (NON-NEGOTIABLE):
- SUBJECT: the product in the reference image.
- RULE: shape, colour, branding and printed text of the SUBJECT must be preserved with 100% accuracy. The product itself must not be altered.
- EXECUTION: place this exact product into a new scene. Replace the original background completely. Produce a professional photograph with realistic lighting, shadows and perspective.
- FOCUS: the product is the hero of the image.
- FAILURE CONDITION: any deviation from the SUBJECT's original appearance is a critical failure.`

const analyzeTemplate = "Describe this image in detail for the purpose of recreating it with an image generation AI. " +
	"Focus on the subject, style, lighting, composition and colours. The description should be a single paragraph, " +
	"written in an inspiring and artistic tone in %s."

// MagicAction selects a single-image edit.
type MagicAction string

const (
	MagicUpscale          MagicAction = "upscale"
	MagicRemoveBackground MagicAction = "remove-bg"
	MagicRemoveObject     MagicAction = "remove-object"
	MagicChangeBackground MagicAction = "change-background"
	MagicFixColors        MagicAction = "fix-colors"
	MagicAutoFilter       MagicAction = "auto-filter"
	MagicCreative         MagicAction = "creative"
)

var magicFixed = map[MagicAction]string{
	MagicUpscale: "Enhance and upscale this image to a higher resolution. Increase details and sharpness while " +
		"preserving the original artistic style and composition.",
	MagicRemoveBackground: "Remove the background from this image, leaving only the main subject on a transparent " +
		"background. Output a PNG.",
	MagicFixColors: "Automatically adjust and correct the colours, brightness and contrast of this image to make it " +
		"look professional, vibrant and balanced.",
}

// FilterStyles maps auto-filter style names to their grading instruction.
var FilterStyles = map[string]string{
	"cinematic-teal-orange": "Apply a cinematic colour grade. Shift shadows and midtones towards teal and highlights and skin tones towards orange. Increase contrast for a dramatic, movie-like feel. Do not alter the subject or composition.",
	"vintage":               "Apply a vintage film look. Emulate the palette of Kodak Portra film with warm tones, slightly faded blacks and fine grain. Keep the original composition and subject identity.",
	"dramatic-bw":           "Convert this image to a high-contrast, dramatic black and white. Deepen the blacks and brighten the whites for a moody image. Emphasise textures and shapes. Preserve all original details.",
	"vibrant-pop":           "Enhance this image with a vibrant, high-saturation colour pop. Increase brightness and contrast but keep skin tones natural.",
	"soft-dreamy":           "Give this image a soft, dreamy look. Apply a gentle bloom, slightly reduce clarity and shift colours towards light pastel tones.",
	"matte-moody":           "Apply a moody matte film look. Lift the black point, desaturate slightly and reduce clarity for a soft, atmospheric feel. Do not alter the subject or composition.",
	"high-contrast-bw":      "Convert this image to a graphic high-contrast black and white. Brighten reds and oranges for luminous skin and deepen blues and cyans for a dramatic sky. Preserve all original details.",
	"cyberpunk-neon":        "Apply a cyberpunk neon grade. Shift the palette towards magenta, blue and cyan, desaturate oranges and yellows slightly and add dehaze so lights pop. Do not alter the subject or composition.",
	"portra-film":           "Emulate Kodak Portra film. Apply a warm, gentle grade with slightly reduced contrast, boosted vibrance, flattering skin tones and fine grain.",
	"creamy-skin":           "Apply a professional 'creamy skin' portrait retouch. Smooth the skin, slightly lower contrast and clarity, adjust orange and red tones for a milky complexion and lift the black point for a matte finish.",
	"golden-hour-pop":       "Create a vibrant golden hour glow. Warm the temperature, boost vibrance, deepen shadows while protecting highlights and shift blues slightly towards teal.",
	"creamy-bw":             "Convert this image to a soft, creamy black and white portrait. Brighten reds and oranges for luminous skin, slightly lower clarity and add fine film grain.",
	"punchy-landscape":      "Make this landscape punchy and vibrant. Increase clarity, dehaze and vibrance, boost blues and greens and shift yellows slightly so foliage looks natural.",
	"cinematic-landscape":   "Apply a teal and orange grade for landscapes. Shift sky and water towards teal, warm the land and foliage and add a gentle S-curve.",
	"moody-forest":          "Give this forest scene a deep, moody atmosphere. Cool the temperature slightly, increase contrast, deepen shadows and shift greens towards a dark, desaturated olive.",
}

// EditRequest composes characters, an optional product and an optional
// background following Prompt.
type EditRequest struct {
	Prompt     string
	Characters []media.ImageAsset
	Product    media.ImageAsset
	Background media.ImageAsset
}

// MagicRequest is a single-image edit. Mask marks the area to change with
// white and is only used by MagicRemoveObject.
type MagicRequest struct {
	Action MagicAction
	Image  media.ImageAsset
	Mask   media.ImageAsset
	Prompt string
	Filter string
	Count  int
}

// RestoreRequest describes a photo restoration.
type RestoreRequest struct {
	Image        media.ImageAsset
	Template     string
	Enhancements []string
	Gender       string
	Age          string
	Exclusion    string
}

// TravelRequest places the characters in a location wearing an outfit.
type TravelRequest struct {
	Characters []media.ImageAsset
	Outfit     string
	Location   string
	Details    string
}

type EditorOptions struct {
	MaxVariants int
	// Language is the language image descriptions are written in.
	Language string
	Logger   *infra.Logger
}

// Editor runs the single-image and composition modes: analyze, edit, magic,
// restore, product shots, travel postcards and concept images.
type Editor struct {
	model       ImageModel
	text        TextModel
	translator  Translator
	maxVariants int
	language    string
	logger      *infra.Logger
}

func NewEditor(model ImageModel, text TextModel, translator Translator, opts EditorOptions) *Editor {
	maxVariants := opts.MaxVariants
	if maxVariants <= 0 {
		maxVariants = defaultMaxVariants
	}
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "English"
	}
	return &Editor{
		model:       model,
		text:        text,
		translator:  translator,
		maxVariants: maxVariants,
		language:    language,
		logger:      infra.ComponentLogger(opts.Logger, "editor"),
	}
}

func (e *Editor) translate(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	if text == "" || e.translator == nil {
		return text
	}
	return e.translator.Translate(ctx, text)
}

func (e *Editor) variantCount(n int) (int, error) {
	if n <= 0 {
		return 1, nil
	}
	if n > e.maxVariants {
		return 0, fmt.Errorf("%w: at most %d variants per request", domain.ErrInvalidInput, e.maxVariants)
	}
	return n, nil
}

func (e *Editor) variants(ctx context.Context, op, instruction string, n int, images ...media.ImageAsset) (*RecompositionResult, error) {
	res, err := generateVariants(ctx, e.model, e.logger, op, instruction, n, images...)
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("op", op).Int("requested", n).Int("succeeded", len(res.Images)).Msg("edit finished")
	return res, nil
}

// Analyze describes image as a single paragraph prompt that could recreate it.
func (e *Editor) Analyze(ctx context.Context, image media.ImageAsset) (string, error) {
	if image.Empty() {
		return "", fmt.Errorf("%w: image is required", domain.ErrInvalidInput)
	}
	out, err := e.text.GenerateText(ctx, fmt.Sprintf(analyzeTemplate, e.language), image)
	if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: analyze image: empty description", domain.ErrProviderFailure)
	}
	return out, nil
}

// EditInstruction lists the assets in the order they are sent: characters,
// then the product, then the background.
func EditInstruction(prompt string, characters int, product, background bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TASK: Photocomposition. Create a new, photorealistic image based on the user's prompt: %q.\n\nASSETS:\n", prompt)
	next := 1
	switch {
	case characters == 1:
		sb.WriteString("- CHARACTER: the first image contains the person to use.\n")
	case characters > 1:
		fmt.Fprintf(&sb, "- CHARACTERS: the first %d images contain the people to use.\n", characters)
	}
	next += characters
	if product {
		fmt.Fprintf(&sb, "- PRODUCT: image %d contains a product to include.\n", next)
		next++
	}
	if background {
		fmt.Fprintf(&sb, "- BACKGROUND: image %d contains the background scene.\n", next)
	}
	sb.WriteString("\n" + identityDirective + "\n")
	sb.WriteString("EXECUTION: combine these assets according to the prompt with consistent lighting, shadows and perspective. Every person's identity must be maintained exactly.")
	return sb.String()
}

// Edit composes the request's assets into n variants.
func (e *Editor) Edit(ctx context.Context, req EditRequest, n int) (*RecompositionResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	images := make([]media.ImageAsset, 0, len(req.Characters)+2)
	for _, c := range req.Characters {
		if !c.Empty() {
			images = append(images, c)
		}
	}
	characters := len(images)
	hasProduct, hasBackground := !req.Product.Empty(), !req.Background.Empty()
	if hasProduct {
		images = append(images, req.Product)
	}
	if hasBackground {
		images = append(images, req.Background)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", domain.ErrInvalidInput)
	}
	n, err := e.variantCount(n)
	if err != nil {
		return nil, err
	}
	prompt := e.translate(ctx, req.Prompt)
	res, err := e.variants(ctx, "edit", EditInstruction(prompt, characters, hasProduct, hasBackground), n, images...)
	if err != nil {
		return nil, err
	}
	res.Instruction = prompt
	return res, nil
}

// MagicInstruction builds the instruction for a non-creative action. prompt
// must already be in English.
func MagicInstruction(action MagicAction, prompt, filter string, masked bool) (string, error) {
	switch action {
	case MagicAutoFilter:
		text, ok := FilterStyles[filter]
		if !ok {
			return "", fmt.Errorf("%w: unknown filter style %q", domain.ErrInvalidInput, filter)
		}
		return text, nil
	case MagicRemoveObject:
		switch {
		case prompt != "" && masked:
			return fmt.Sprintf("Remove the object described as %q, which is also marked by the white area in the following mask. Inpaint the area to match the surroundings.", prompt), nil
		case prompt != "":
			return fmt.Sprintf("From the image, remove the object described as %q. Inpaint the area to match the surroundings seamlessly.", prompt), nil
		case masked:
			return "Remove the object marked by the white area in the following mask and inpaint the area to match the surroundings.", nil
		}
		return "", fmt.Errorf("%w: remove-object needs a mask or a prompt", domain.ErrInvalidInput)
	case MagicChangeBackground:
		if prompt == "" {
			return "", fmt.Errorf("%w: change-background needs a prompt", domain.ErrInvalidInput)
		}
		return fmt.Sprintf("Change the background of this image to: %q. Keep the foreground subject intact and blend it naturally with the new background.", prompt), nil
	}
	if text, ok := magicFixed[action]; ok {
		return text, nil
	}
	return "", fmt.Errorf("%w: unknown magic action %q", domain.ErrInvalidInput, action)
}

// Magic runs a single-image edit. The creative action returns req.Count
// identity-preserving variants; every other action returns one image.
func (e *Editor) Magic(ctx context.Context, req MagicRequest) (*RecompositionResult, error) {
	if req.Image.Empty() {
		return nil, fmt.Errorf("%w: image is required", domain.ErrInvalidInput)
	}
	prompt := e.translate(ctx, req.Prompt)

	if req.Action == MagicCreative {
		if prompt == "" {
			return nil, fmt.Errorf("%w: creative edit needs a prompt", domain.ErrInvalidInput)
		}
		n, err := e.variantCount(req.Count)
		if err != nil {
			return nil, err
		}
		instruction := fmt.Sprintf("Take the person from the reference image and place them into a completely new scene or style: %q.\n%s\nKeep the person identical.", prompt, identityDirective)
		res, err := e.variants(ctx, "magic edit", instruction, n, req.Image)
		if err != nil {
			return nil, err
		}
		res.Instruction = prompt
		return res, nil
	}

	masked := req.Action == MagicRemoveObject && !req.Mask.Empty()
	instruction, err := MagicInstruction(req.Action, prompt, req.Filter, masked)
	if err != nil {
		return nil, err
	}
	images := []media.ImageAsset{req.Image}
	if masked {
		images = append(images, req.Mask)
	}
	res, err := e.variants(ctx, "magic edit", instruction, 1, images...)
	if err != nil {
		return nil, err
	}
	res.Instruction = prompt
	return res, nil
}

const restoreTemplate = `TASK: Professional photo restoration.
Restore the provided old, damaged or low-quality photo to a high-quality, realistic and detailed result.

TEMPLATE: %q
ENHANCEMENTS:
%s
SUBJECT:
- Gender: %s
- Age: %s
%s
EXECUTION:
1. Find the damage: scratches, dust, fading, low resolution.
2. Restore following the TEMPLATE and apply every ENHANCEMENT.
3. Use the SUBJECT details, when given, to guide facial reconstruction so the result looks natural and age-appropriate.
4. Return one restored image with no added text or artefacts.`

// RestoreInstruction renders the restoration instruction for req.
func RestoreInstruction(req RestoreRequest) string {
	template := strings.TrimSpace(req.Template)
	if template == "" {
		template = "Restore the photo faithfully, keeping its original colours and composition"
	}
	var enh strings.Builder
	for _, s := range req.Enhancements {
		if s = strings.TrimSpace(s); s != "" {
			enh.WriteString("- " + s + "\n")
		}
	}
	if enh.Len() == 0 {
		enh.WriteString("- none\n")
	}
	exclusion := ""
	if x := strings.TrimSpace(req.Exclusion); x != "" {
		exclusion = fmt.Sprintf("\nEXCLUSION (NON-NEGOTIABLE): %q\n", x)
	}
	unset := func(s string) string {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
		return "not specified"
	}
	return fmt.Sprintf(restoreTemplate, template, enh.String(), unset(req.Gender), unset(req.Age), exclusion)
}

// Restore returns one restored copy of req.Image.
func (e *Editor) Restore(ctx context.Context, req RestoreRequest) (media.ImageAsset, error) {
	if req.Image.Empty() {
		return media.ImageAsset{}, fmt.Errorf("%w: image is required", domain.ErrInvalidInput)
	}
	req.Template = e.translate(ctx, req.Template)
	req.Exclusion = e.translate(ctx, req.Exclusion)
	req.Enhancements = slices.Clone(req.Enhancements)
	for i, s := range req.Enhancements {
		req.Enhancements[i] = e.translate(ctx, s)
	}
	img, err := e.model.GenerateImage(ctx, RestoreInstruction(req), req.Image)
	if err != nil {
		return media.ImageAsset{}, fmt.Errorf("restore photo: %w", asPolicyRefusal(err))
	}
	e.logger.Info().Int("enhancements", len(req.Enhancements)).Msg("photo restored")
	return img, nil
}

// ProductShot places the product into scene n times.
func (e *Editor) ProductShot(ctx context.Context, product media.ImageAsset, scene string, n int) (*RecompositionResult, error) {
	if product.Empty() {
		return nil, fmt.Errorf("%w: product image is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(scene) == "" {
		return nil, fmt.Errorf("%w: scene is required", domain.ErrInvalidInput)
	}
	n, err := e.variantCount(n)
	if err != nil {
		return nil, err
	}
	scene = e.translate(ctx, scene)
	instruction := fmt.Sprintf("Take the product from the provided image and place it into a new scene described as: %q.\n%s", scene, productDirective)
	res, err := e.variants(ctx, "product shot", instruction, n, product)
	if err != nil {
		return nil, err
	}
	res.Instruction = scene
	return res, nil
}

// Travel renders the characters as a travel photograph n times.
func (e *Editor) Travel(ctx context.Context, req TravelRequest, n int) (*RecompositionResult, error) {
	images := make([]media.ImageAsset, 0, len(req.Characters))
	for _, c := range req.Characters {
		if !c.Empty() {
			images = append(images, c)
		}
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: at least one character image is required", domain.ErrInvalidInput)
	}
	n, err := e.variantCount(n)
	if err != nil {
		return nil, err
	}
	location, outfit, details := e.translate(ctx, req.Location), e.translate(ctx, req.Outfit), e.translate(ctx, req.Details)

	var sb strings.Builder
	sb.WriteString("TASK: Create a photorealistic photograph.\n\nASSETS:\n")
	fmt.Fprintf(&sb, "- CHARACTER: the first %d image(s) show the person whose identity must be preserved.\n", len(images))
	if location != "" {
		fmt.Fprintf(&sb, "- SCENE: place this person in %q.\n", location)
	}
	if outfit != "" {
		fmt.Fprintf(&sb, "- OUTFIT: the person wears %q.\n", outfit)
	}
	if details != "" {
		fmt.Fprintf(&sb, "- DETAILS: %q.\n", details)
	}
	sb.WriteString("\n" + identityDirective + "\n")
	sb.WriteString("EXECUTION: combine these elements seamlessly. Exact preservation of the person's identity comes first.")

	res, err := e.variants(ctx, "travel image", sb.String(), n, images...)
	if err != nil {
		return nil, err
	}
	res.Instruction = strings.Join(slices.DeleteFunc([]string{location, outfit, details}, func(s string) bool { return s == "" }), "; ")
	return res, nil
}

// Concept places the character into a scene built from concept n times.
func (e *Editor) Concept(ctx context.Context, character media.ImageAsset, concept string, n int) (*RecompositionResult, error) {
	if character.Empty() {
		return nil, fmt.Errorf("%w: character image is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(concept) == "" {
		return nil, fmt.Errorf("%w: concept is required", domain.ErrInvalidInput)
	}
	n, err := e.variantCount(n)
	if err != nil {
		return nil, err
	}
	concept = e.translate(ctx, concept)
	instruction := fmt.Sprintf("Take the person from the reference image and place them into a new scene based on this concept: %q.\n%s\n"+
		"The result must be photorealistic with seamless integration, correct lighting and shadows.", concept, identityDirective)
	res, err := e.variants(ctx, "concept image", instruction, n, character)
	if err != nil {
		return nil, err
	}
	res.Instruction = concept
	return res, nil
}
