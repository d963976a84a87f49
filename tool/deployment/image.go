package deployment

import (
	"strings"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// DefaultImageDeployment is the image model deployment name.
const DefaultImageDeployment = "dall-e-3"

// imageShownNote tells the model the picture is already visible to the user.
const imageShownNote = "The image has been successfully generated according to request and shown to user!"

var imageTypes = map[string]bool{"image/png": true, "image/jpeg": true}

// ImageGeneration generates pictures and shows them on the final answer.
type ImageGeneration struct {
	*Tool
}

// NewImageGeneration creates the generate_image tool. An empty deployment
// uses DefaultImageDeployment.
func NewImageGeneration(m model.Model, deployment string) *ImageGeneration {
	if deployment == "" {
		deployment = DefaultImageDeployment
	}
	return &ImageGeneration{Tool: New(m, deployment, "generate_image",
		"Generates images using DALL-E-3 based on a detailed text description. "+
			"Use this tool when the user requests image generation, picture creation, or visual content. "+
			"Provide a comprehensive and detailed prompt describing the desired image including subject, style, "+
			"colors, composition, and any specific details. The generated image will be automatically displayed "+
			"in the chat. Optional parameters: size (1024x1024, 1792x1024, or 1024x1792), quality (standard or hd), "+
			"and style (vivid or natural).",
		imageParameters(),
	)}
}

// Call implements tool.Tool. Generated PNG and JPEG images are published on
// the final answer and referenced as markdown in the tool result.
func (g *ImageGeneration) Call(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
	comp, err := g.Complete(tc, args)
	if err != nil {
		return tool.Result{}, err
	}
	var md strings.Builder
	for _, a := range comp.Attachments {
		if !imageTypes[a.Type] || a.URL == "" {
			continue
		}
		md.WriteString("\n\r![image](" + a.URL + ")\n\r")
		tc.PublishAttachment(a)
	}
	content := comp.Text
	if md.Len() > 0 {
		if content == "" {
			content = imageShownNote
		}
		content += md.String()
	}
	return tool.Result{Content: content, Attachments: comp.Attachments}, nil
}

func imageParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Extensive description of the image that should be generated. Include details about subject, style, colors, composition, mood, and any specific elements.",
			},
			"size": map[string]any{
				"type":        "string",
				"enum":        []string{"1024x1024", "1792x1024", "1024x1792"},
				"description": "The size of the generated images.",
				"default":     "1024x1024",
			},
			"quality": map[string]any{
				"type":        "string",
				"enum":        []string{"standard", "hd"},
				"description": "The quality of the image. hd creates images with finer details.",
				"default":     "standard",
			},
			"style": map[string]any{
				"type":        "string",
				"enum":        []string{"vivid", "natural"},
				"description": "vivid produces hyper-real and dramatic images, natural produces more natural looking images.",
				"default":     "vivid",
			},
		},
		"required": []string{"prompt"},
	}
}
