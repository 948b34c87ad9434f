package model

import (
	"encoding/json"
	"fmt"
)

// PipelineKind discriminates the descriptor variants.
type PipelineKind int

const (
	KindGraphics   PipelineKind = 0 // Graphics pipeline (vertex + fragment)
	KindCompute    PipelineKind = 1 // Compute pipeline
	KindRayTracing PipelineKind = 2 // Ray tracing pipeline
)

// String returns the string representation of PipelineKind.
func (k PipelineKind) String() string {
	switch k {
	case KindGraphics:
		return "graphics"
	case KindCompute:
		return "compute"
	case KindRayTracing:
		return "raytracing"
	default:
		return "unknown"
	}
}

// BlendState holds the fixed-function blend configuration.
type BlendState struct {
	Enabled        bool   `json:"enabled"`
	SrcColorFactor string `json:"src_color,omitempty"`
	DstColorFactor string `json:"dst_color,omitempty"`
	ColorOp        string `json:"color_op,omitempty"`
	SrcAlphaFactor string `json:"src_alpha,omitempty"`
	DstAlphaFactor string `json:"dst_alpha,omitempty"`
	AlphaOp        string `json:"alpha_op,omitempty"`
	WriteMask      uint8  `json:"write_mask"`
}

// RasterizerState holds the fixed-function rasterizer configuration.
type RasterizerState struct {
	FillMode        string  `json:"fill_mode"`
	CullMode        string  `json:"cull_mode"`
	DepthBias       int32   `json:"depth_bias"`
	SlopeScaledBias float32 `json:"slope_scaled_bias"`
	FrontCCW        bool    `json:"front_ccw"`
}

// DepthStencilState holds the fixed-function depth/stencil configuration.
type DepthStencilState struct {
	DepthTest    bool   `json:"depth_test"`
	DepthWrite   bool   `json:"depth_write"`
	DepthFunc    string `json:"depth_func,omitempty"`
	StencilTest  bool   `json:"stencil_test"`
	StencilRead  uint8  `json:"stencil_read"`
	StencilWrite uint8  `json:"stencil_write"`
}

// GraphicsPipeline describes a graphics PSO: shader stages plus the
// fixed-function state blobs and output formats it was recorded with.
type GraphicsPipeline struct {
	VertexShader   ShaderHash `json:"vertex_shader"`
	FragmentShader ShaderHash `json:"fragment_shader,omitempty"`
	GeometryShader ShaderHash `json:"geometry_shader,omitempty"`

	Blend        BlendState        `json:"blend"`
	Rasterizer   RasterizerState   `json:"rasterizer"`
	DepthStencil DepthStencilState `json:"depth_stencil"`

	PrimitiveType string   `json:"primitive_type"`
	TargetFormats []string `json:"target_formats,omitempty"`
	DepthFormat   string   `json:"depth_format,omitempty"`
	SampleCount   uint8    `json:"sample_count"`
}

// ComputePipeline describes a compute PSO.
type ComputePipeline struct {
	Shader ShaderHash `json:"shader"`
}

// RayTracingPipeline describes a ray tracing PSO.
type RayTracingPipeline struct {
	RayGenShader    ShaderHash `json:"raygen_shader"`
	MaxRecursion    uint32     `json:"max_recursion"`
	PayloadSize     uint32     `json:"payload_size"`
	AttributeSize   uint32     `json:"attribute_size"`
	AllowIndirectly bool       `json:"allow_indirect"`
}

// Descriptor is the tagged union over the pipeline kinds. Exactly one of the
// variant pointers is non-nil, matching Kind.
type Descriptor struct {
	Kind       PipelineKind        `json:"kind"`
	Graphics   *GraphicsPipeline   `json:"graphics,omitempty"`
	Compute    *ComputePipeline    `json:"compute,omitempty"`
	RayTracing *RayTracingPipeline `json:"raytracing,omitempty"`
}

// ShaderHashes returns the shader fingerprints the descriptor depends on.
// Unset stages (zero hash) are omitted.
func (d *Descriptor) ShaderHashes() []ShaderHash {
	var hashes []ShaderHash
	appendIf := func(h ShaderHash) {
		if h != 0 {
			hashes = append(hashes, h)
		}
	}

	switch d.Kind {
	case KindGraphics:
		if d.Graphics != nil {
			appendIf(d.Graphics.VertexShader)
			appendIf(d.Graphics.FragmentShader)
			appendIf(d.Graphics.GeometryShader)
		}
	case KindCompute:
		if d.Compute != nil {
			appendIf(d.Compute.Shader)
		}
	case KindRayTracing:
		if d.RayTracing != nil {
			appendIf(d.RayTracing.RayGenShader)
		}
	}

	return hashes
}

// Validate checks the internal consistency of the descriptor: the variant
// pointer must match Kind and the required shader stages must be set.
func (d *Descriptor) Validate() error {
	switch d.Kind {
	case KindGraphics:
		if d.Graphics == nil {
			return fmt.Errorf("graphics descriptor missing graphics state")
		}
		if d.Graphics.VertexShader == 0 {
			return fmt.Errorf("graphics descriptor missing vertex shader")
		}
	case KindCompute:
		if d.Compute == nil {
			return fmt.Errorf("compute descriptor missing compute state")
		}
		if d.Compute.Shader == 0 {
			return fmt.Errorf("compute descriptor missing shader")
		}
	case KindRayTracing:
		if d.RayTracing == nil {
			return fmt.Errorf("raytracing descriptor missing raytracing state")
		}
		if d.RayTracing.RayGenShader == 0 {
			return fmt.Errorf("raytracing descriptor missing raygen shader")
		}
	default:
		return fmt.Errorf("unknown pipeline kind: %d", d.Kind)
	}
	return nil
}

// Fingerprint computes the stable PSO hash of the descriptor from its
// canonical JSON encoding.
func (d *Descriptor) Fingerprint() (Hash, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return 0, fmt.Errorf("failed to encode descriptor: %w", err)
	}
	return Hash(FingerprintBytes(data)), nil
}

// EncodeDescriptor serializes a descriptor to its on-disk byte form.
func EncodeDescriptor(d *Descriptor) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// DecodeDescriptor deserializes descriptor bytes. A structural failure here
// indicates a corrupted record, not a transient condition.
func DecodeDescriptor(data []byte) (*Descriptor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty descriptor bytes")
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("descriptor failed validation: %w", err)
	}
	return &d, nil
}

// TaskHeader identifies a PSO awaiting precompilation: its hash plus the
// shader fingerprints that must be resolvable before it can be fetched.
type TaskHeader struct {
	Hash         Hash
	ShaderHashes []ShaderHash
}
