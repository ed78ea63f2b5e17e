// Package gltfload builds scene.SceneTables from a glTF 2.0 document. It
// sits outside the rendering core: nothing under pkg/surface,
// pkg/hashgrid, pkg/vcm, or pkg/pathtrace imports this package.
package gltfload

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
	"github.com/oxbowlabs/vcmtracer/pkg/scene"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Scene is the decoded result: the read-only tables, a default BVH
// intersector built over them, and the IBL/camera the loader synthesised
// from Options (glTF has no native concept of an image-based light, so a
// uniform IBL is constructed from the configurable background color).
type Scene struct {
	Tables      *scene.SceneTables
	Intersector *scene.BVHIntersector
	IBL         scene.IBL
	Camera      scene.Camera
}

// Options configures parts of scene assembly that glTF doesn't describe.
type Options struct {
	Background   core.Vec3
	ImageWidth   int
	ImageHeight  int
	CameraEye    core.Vec3
	CameraTarget core.Vec3
	CameraUp     core.Vec3
	CameraFovY   float64
}

// DefaultOptions returns sane defaults for a quick render of any mesh.
func DefaultOptions() Options {
	return Options{
		Background:   core.NewVec3(0.05, 0.05, 0.08),
		ImageWidth:   512,
		ImageHeight:  512,
		CameraEye:    core.NewVec3(0, 1, 4),
		CameraTarget: core.NewVec3(0, 0, 0),
		CameraUp:     core.NewVec3(0, 1, 0),
		CameraFovY:   45,
	}
}

// Load reads a glTF document from path and flattens every mesh primitive
// into scene.SceneTables.
func Load(path string, opts Options) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gltfload: open %s: %w", path, err)
	}

	materials, textures, err := loadMaterials(doc, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("gltfload: materials: %w", err)
	}

	var vertexData []scene.VertexAttr
	var indices []int32

	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				continue
			}
			if err := appendPrimitive(doc, prim, &vertexData, &indices); err != nil {
				return nil, fmt.Errorf("gltfload: mesh %q: %w", mesh.Name, err)
			}
		}
	}

	if len(vertexData) == 0 {
		return nil, fmt.Errorf("gltfload: %s contains no triangle primitives", path)
	}

	tables := &scene.SceneTables{
		Indices:        indices,
		VertexData:     vertexData,
		Materials:      materials,
		Textures:       textures,
		BoundingSphere: scene.ComputeBoundingSphere(vertexData),
	}

	return &Scene{
		Tables:      tables,
		Intersector: scene.NewBVHIntersector(tables),
		IBL:         scene.NewUniformIBL(opts.Background, tables.BoundingSphere),
		Camera:      scene.NewPinholeCamera(opts.CameraEye, opts.CameraTarget, opts.CameraUp, opts.CameraFovY, opts.ImageWidth, opts.ImageHeight),
	}, nil
}

func appendPrimitive(doc *gltf.Document, prim *gltf.Primitive, vertexData *[]scene.VertexAttr, indices *[]int32) error {
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}

	normals := make([][3]float32, len(positions))
	if normIdx, ok := prim.Attributes[gltf.NORMAL]; ok {
		if normals, err = modeler.ReadNormal(doc, doc.Accessors[normIdx], nil); err != nil {
			return fmt.Errorf("read normals: %w", err)
		}
	}

	uvs := make([][2]float32, len(positions))
	if uvIdx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		if uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[uvIdx], nil); err != nil {
			return fmt.Errorf("read texcoords: %w", err)
		}
	}

	tangents := make([][4]float32, len(positions))
	hasTangents := false
	if tanIdx, ok := prim.Attributes[gltf.TANGENT]; ok {
		if tangents, err = modeler.ReadTangent(doc, doc.Accessors[tanIdx], nil); err != nil {
			return fmt.Errorf("read tangents: %w", err)
		}
		hasTangents = true
	}

	materialIndex := 0
	if prim.Material != nil {
		materialIndex = *prim.Material
	}

	baseVertex := int32(len(*vertexData))
	for i, p := range positions {
		n := core.NewVec3(float64(normals[i][0]), float64(normals[i][1]), float64(normals[i][2]))
		if n.IsZero() {
			n = core.NewVec3(0, 1, 0)
		}
		tangent := core.NewVec3(1, 0, 0)
		handedness := 1.0
		if hasTangents {
			tangent = core.NewVec3(float64(tangents[i][0]), float64(tangents[i][1]), float64(tangents[i][2]))
			handedness = float64(tangents[i][3])
		}
		*vertexData = append(*vertexData, scene.VertexAttr{
			Position:  core.NewVec3(float64(p[0]), float64(p[1]), float64(p[2])),
			Normal:    n.Normalize(),
			Tangent:   tangent,
			Bitangent: handedness,
			UV:        core.NewVec2(float64(uvs[i][0]), float64(uvs[i][1])),
			Material:  materialIndex,
		})
	}

	var triIndices []uint32
	if prim.Indices != nil {
		if triIndices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil); err != nil {
			return fmt.Errorf("read indices: %w", err)
		}
	} else {
		triIndices = make([]uint32, len(positions))
		for i := range triIndices {
			triIndices[i] = uint32(i)
		}
	}
	for _, idx := range triIndices {
		*indices = append(*indices, baseVertex+int32(idx))
	}

	return nil
}

func loadMaterials(doc *gltf.Document, baseDir string) ([]scene.Material, []scene.Texture, error) {
	textures := make([]scene.Texture, 0, len(doc.Images))
	textureForImage := func(imageIdx *int) int {
		if imageIdx == nil {
			return -1
		}
		img := doc.Images[*imageIdx]
		if img.URI == "" {
			return -1 // embedded buffer-view images are not decoded
		}
		tex, err := decodeTextureFile(filepath.Join(baseDir, img.URI))
		if err != nil {
			return -1
		}
		textures = append(textures, *tex)
		return len(textures) - 1
	}

	materials := make([]scene.Material, 0, len(doc.Materials))
	for _, m := range doc.Materials {
		mat := scene.Material{
			Kind:         scene.MaterialLambertian,
			Albedo:       core.NewVec3(1, 1, 1),
			Roughness:    1,
			Metalness:    1,
			IOR:          1.5,
			AlbedoTex:    -1,
			SpecularTex:  -1,
			RoughnessTex: -1,
			MetalnessTex: -1,
			EmissiveTex:  -1,
			NormalTex:    -1,
		}
		if pbr := m.PBRMetallicRoughness; pbr != nil {
			if pbr.BaseColorFactor != nil {
				f := pbr.BaseColorFactor
				mat.Albedo = core.NewVec3(float64(f[0]), float64(f[1]), float64(f[2]))
			}
			if pbr.RoughnessFactor != nil {
				mat.Roughness = float64(*pbr.RoughnessFactor)
			}
			if pbr.MetallicFactor != nil {
				mat.Metalness = float64(*pbr.MetallicFactor)
			}
			if pbr.BaseColorTexture != nil {
				mat.AlbedoTex = textureForImage(textureSourceImage(doc, uint32(pbr.BaseColorTexture.Index)))
			}
			if pbr.MetallicRoughnessTexture != nil {
				idx := textureForImage(textureSourceImage(doc, uint32(pbr.MetallicRoughnessTexture.Index)))
				mat.RoughnessTex, mat.MetalnessTex = idx, idx
			}
		}
		var ior iorExtension
		if decodeExtension(m.Extensions, extMaterialsIOR, &ior) && ior.IOR != nil {
			mat.IOR = *ior.IOR
		}
		var transmission transmissionExtension
		if decodeExtension(m.Extensions, extMaterialsTransmission, &transmission) &&
			transmission.TransmissionFactor != nil && *transmission.TransmissionFactor > 0 {
			mat.Kind = scene.MaterialDielectric
			mat.Transparent = true
			mat.Specular = mat.Albedo // baseColor tints the glass
		} else if mat.Metalness >= 1 && mat.Roughness <= mirrorRoughnessMax && mat.RoughnessTex < 0 {
			// A smooth fully-metallic surface maps onto the perfect-mirror
			// variant; anything rougher stays with the diffuse model.
			mat.Kind = scene.MaterialMirror
			mat.Specular = mat.Albedo
		}

		mat.Emissive = core.NewVec3(float64(m.EmissiveFactor[0]), float64(m.EmissiveFactor[1]), float64(m.EmissiveFactor[2]))
		if !mat.Emissive.IsZero() {
			mat.Kind = scene.MaterialEmissive
		}
		if m.NormalTexture != nil && m.NormalTexture.Index != nil {
			mat.NormalTex = textureForImage(textureSourceImage(doc, uint32(*m.NormalTexture.Index)))
		}
		if m.AlphaMode == gltf.AlphaBlend {
			mat.Transparent = true
		}
		materials = append(materials, mat)
	}

	if len(materials) == 0 {
		materials = append(materials, scene.Material{Kind: scene.MaterialLambertian, Albedo: core.NewVec3(0.8, 0.8, 0.8), Roughness: 1, Metalness: 1, IOR: 1.5, AlbedoTex: -1, SpecularTex: -1, RoughnessTex: -1, MetalnessTex: -1, EmissiveTex: -1, NormalTex: -1})
	}

	return materials, textures, nil
}

// glTF material extensions recognised by the loader.
const (
	extMaterialsTransmission = "KHR_materials_transmission"
	extMaterialsIOR          = "KHR_materials_ior"
)

// mirrorRoughnessMax bounds how rough a fully-metallic surface can be and
// still map onto the perfect-mirror material variant.
const mirrorRoughnessMax = 0.05

type transmissionExtension struct {
	TransmissionFactor *float64 `json:"transmissionFactor"`
}

type iorExtension struct {
	IOR *float64 `json:"ior"`
}

// decodeExtension unmarshals the named extension object into out. The
// gltf decoder keeps extensions it has no registered codec for as raw
// JSON, which is how both extensions handled here arrive.
func decodeExtension(ext gltf.Extensions, name string, out any) bool {
	raw, ok := ext[name]
	if !ok {
		return false
	}
	data, ok := raw.(json.RawMessage)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func textureSourceImage(doc *gltf.Document, textureIndex uint32) *int {
	if int(textureIndex) >= len(doc.Textures) {
		return nil
	}
	src := doc.Textures[textureIndex].Source
	if src == nil {
		return nil
	}
	idx := int(*src)
	return &idx
}

func decodeTextureFile(path string) (*scene.Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]core.Vec3, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			pixels[y*w+x] = core.NewVec3(float64(r)/0xffff, float64(g)/0xffff, float64(b)/0xffff)
		}
	}
	return &scene.Texture{Width: w, Height: h, Pixels: pixels}, nil
}
