package ifc

import (
	"fmt"
	"image/color"
	"sort"
	"strings"

	"cogentcore.org/core/math32"
	"github.com/dl-alexandre/bimview/internal/model"
)

const (
	maxPlacementDepth = 64
	circleSegments    = 16
)

// transform is an affine frame: origin plus scaled axes
type transform struct {
	origin  math32.Vector3
	x, y, z math32.Vector3
}

func identity() transform {
	return transform{
		x: math32.Vec3(1, 0, 0),
		y: math32.Vec3(0, 1, 0),
		z: math32.Vec3(0, 0, 1),
	}
}

func (t transform) dir(d math32.Vector3) math32.Vector3 {
	return t.x.MulScalar(d.X).Add(t.y.MulScalar(d.Y)).Add(t.z.MulScalar(d.Z))
}

func (t transform) point(p math32.Vector3) math32.Vector3 {
	return t.origin.Add(t.dir(p))
}

// within expresses t, defined relative to parent, in parent's space
func (t transform) within(parent transform) transform {
	return transform{
		origin: parent.point(t.origin),
		x:      parent.dir(t.x),
		y:      parent.dir(t.y),
		z:      parent.dir(t.z),
	}
}

func (t transform) scaled(s float32) transform {
	return transform{origin: t.origin, x: t.x.MulScalar(s), y: t.y.MulScalar(s), z: t.z.MulScalar(s)}
}

// builder walks products and their representations into meshes
type builder struct {
	doc        *document
	root       transform
	placements map[int]transform
	itemStyles map[int]*model.Material
	styleCache map[int]*model.Material
	fallback   *model.Material
	unknown    map[string]bool
	warnings   []string
}

func newBuilder(doc *document) *builder {
	b := &builder{
		doc:        doc,
		root:       identity().scaled(lengthScale(doc)),
		placements: make(map[int]transform),
		itemStyles: make(map[int]*model.Material),
		styleCache: make(map[int]*model.Material),
		fallback:   model.DefaultMaterial(),
		unknown:    make(map[string]bool),
	}
	b.indexStyles()
	return b
}

func (b *builder) warnf(format string, args ...interface{}) {
	b.warnings = append(b.warnings, fmt.Sprintf(format, args...))
}

// lengthScale converts the project length unit to metres
func lengthScale(doc *document) float32 {
	for _, id := range doc.order {
		e := doc.entities[id]
		if e.typ != "IFCSIUNIT" || e.arg(1).text() != "LENGTHUNIT" {
			continue
		}
		switch e.arg(2).text() {
		case "MILLI":
			return 0.001
		case "CENTI":
			return 0.01
		case "DECI":
			return 0.1
		case "KILO":
			return 1000
		}
		return 1
	}
	return 1
}

func (b *builder) vector(v value) (math32.Vector3, bool) {
	e := b.doc.getType(v, "IFCCARTESIANPOINT", "IFCDIRECTION")
	if e == nil {
		return math32.Vector3{}, false
	}
	return toVector(e.arg(0).floats())
}

func toVector(c []float64) (math32.Vector3, bool) {
	var p math32.Vector3
	switch len(c) {
	case 3:
		p.Z = float32(c[2])
		fallthrough
	case 2:
		p.X = float32(c[0])
		p.Y = float32(c[1])
	default:
		return p, false
	}
	if !finite(p) {
		return p, false
	}
	return p, true
}

func finite(p math32.Vector3) bool {
	for _, c := range []float32{p.X, p.Y, p.Z} {
		if math32.IsNaN(c) || math32.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// axisPlacement reads IfcAxis2Placement3D/2D into a frame
func (b *builder) axisPlacement(v value) transform {
	t := identity()
	e := b.doc.getType(v, "IFCAXIS2PLACEMENT3D", "IFCAXIS2PLACEMENT2D")
	if e == nil {
		return t
	}
	if p, ok := b.vector(e.arg(0)); ok {
		t.origin = p
	}

	refArg := e.arg(2)
	if e.typ == "IFCAXIS2PLACEMENT3D" {
		if z, ok := b.vector(e.arg(1)); ok && z.Length() > 0 {
			t.z = z.Normal()
		}
	} else {
		refArg = e.arg(1)
	}

	ref := math32.Vec3(1, 0, 0)
	if r, ok := b.vector(refArg); ok && r.Length() > 0 {
		ref = r
	}
	// project the reference direction onto the plane normal to z
	x := ref.Sub(t.z.MulScalar(ref.Dot(t.z)))
	if x.Length() == 0 {
		x = math32.Vec3(1, 0, 0)
	}
	t.x = x.Normal()
	t.y = t.z.Cross(t.x)
	return t
}

// placement resolves an IfcLocalPlacement chain into world space
func (b *builder) placement(v value, depth int) transform {
	e := b.doc.getType(v, "IFCLOCALPLACEMENT")
	if e == nil {
		return b.root
	}
	if t, ok := b.placements[e.id]; ok {
		return t
	}
	if depth > maxPlacementDepth {
		b.warnf("placement chain at #%d too deep", e.id)
		return b.root
	}
	t := b.axisPlacement(e.arg(1)).within(b.placement(e.arg(0), depth+1))
	b.placements[e.id] = t
	return t
}

// indexStyles maps representation items to the surface style applied to them
func (b *builder) indexStyles() {
	for _, id := range b.doc.order {
		e := b.doc.entities[id]
		if e.typ != "IFCSTYLEDITEM" {
			continue
		}
		item := e.arg(0)
		if item.kind != kindRef {
			continue
		}
		if mat := b.styleFromList(e.arg(1)); mat != nil {
			b.itemStyles[item.ref] = mat
		}
	}
}

func (b *builder) styleFromList(v value) *model.Material {
	for _, s := range v.list {
		e := b.doc.get(s)
		if e == nil {
			continue
		}
		switch e.typ {
		case "IFCPRESENTATIONSTYLEASSIGNMENT":
			if mat := b.styleFromList(e.arg(0)); mat != nil {
				return mat
			}
		case "IFCSURFACESTYLE":
			if mat := b.surfaceStyle(e); mat != nil {
				return mat
			}
		}
	}
	return nil
}

func (b *builder) surfaceStyle(e *entity) *model.Material {
	if mat, ok := b.styleCache[e.id]; ok {
		return mat
	}
	var mat *model.Material
	for _, s := range e.arg(2).list {
		shading := b.doc.getType(s, "IFCSURFACESTYLERENDERING", "IFCSURFACESTYLESHADING")
		if shading == nil {
			continue
		}
		rgb := b.doc.getType(shading.arg(0), "IFCCOLOURRGB")
		if rgb == nil {
			continue
		}
		r, _ := rgb.arg(1).float()
		g, _ := rgb.arg(2).float()
		bl, _ := rgb.arg(3).float()
		transparency, _ := shading.arg(1).float()

		name := e.arg(0).text()
		if name == "" {
			name = fmt.Sprintf("style-%d", e.id)
		}
		mat = &model.Material{
			Name:        name,
			Color:       color.RGBA{R: channel(r), G: channel(g), B: channel(bl), A: 255},
			Opacity:     float32(1 - clamp01(transparency)),
			DoubleSided: e.arg(1).text() == "BOTH",
		}
		mat.Transparent = mat.Opacity < 1
		break
	}
	b.styleCache[e.id] = mat
	return mat
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func channel(f float64) uint8 {
	return uint8(clamp01(f)*255 + 0.5)
}

// geometry accumulates triangles for one representation item
type geometry struct {
	positions []math32.Vector3
	indices   []uint32
}

// polygon fan-triangulates a planar loop
func (g *geometry) polygon(pts []math32.Vector3) {
	if len(pts) < 3 {
		return
	}
	base := uint32(len(g.positions))
	g.positions = append(g.positions, pts...)
	for i := 1; i+1 < len(pts); i++ {
		g.indices = append(g.indices, base, base+uint32(i), base+uint32(i+1))
	}
}

func (b *builder) loop(v value, tf transform) []math32.Vector3 {
	e := b.doc.getType(v, "IFCPOLYLOOP", "IFCPOLYLINE")
	if e == nil {
		return nil
	}
	pts := make([]math32.Vector3, 0, len(e.arg(0).list))
	for _, ref := range e.arg(0).list {
		p, ok := b.vector(ref)
		if !ok {
			return nil
		}
		pts = append(pts, tf.point(p))
	}
	return pts
}

func (b *builder) face(e *entity, tf transform, g *geometry) {
	bounds := e.arg(0).list
	var outer *entity
	for _, ref := range bounds {
		bound := b.doc.getType(ref, "IFCFACEOUTERBOUND", "IFCFACEBOUND")
		if bound == nil {
			continue
		}
		if outer == nil || bound.typ == "IFCFACEOUTERBOUND" {
			outer = bound
		}
	}
	if outer == nil {
		return
	}
	if len(bounds) > 1 {
		b.unsupported("face holes")
	}
	pts := b.loop(outer.arg(0), tf)
	if outer.arg(1).text() == "F" {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	g.polygon(pts)
}

func (b *builder) shell(v value, tf transform, g *geometry) {
	e := b.doc.getType(v, "IFCCLOSEDSHELL", "IFCOPENSHELL", "IFCCONNECTEDFACESET")
	if e == nil {
		return
	}
	for _, ref := range e.arg(0).list {
		if f := b.doc.getType(ref, "IFCFACE", "IFCFACESURFACE"); f != nil {
			b.face(f, tf, g)
		}
	}
}

// pointList reads IfcCartesianPointList3D in the given frame
func (b *builder) pointList(v value, tf transform) []math32.Vector3 {
	e := b.doc.getType(v, "IFCCARTESIANPOINTLIST3D")
	if e == nil {
		return nil
	}
	pts := make([]math32.Vector3, 0, len(e.arg(0).list))
	for _, c := range e.arg(0).list {
		p, ok := toVector(c.floats())
		if !ok {
			return nil
		}
		pts = append(pts, tf.point(p))
	}
	return pts
}

// indexed maps 1-based STEP indices through an optional PnIndex
func indexed(raw []float64, pn []float64, n int) ([]uint32, bool) {
	out := make([]uint32, 0, len(raw))
	for _, f := range raw {
		i := int(f)
		if len(pn) > 0 {
			if i < 1 || i > len(pn) {
				return nil, false
			}
			i = int(pn[i-1])
		}
		if i < 1 || i > n {
			return nil, false
		}
		out = append(out, uint32(i-1))
	}
	return out, true
}

func (b *builder) triangulatedFaceSet(e *entity, tf transform, g *geometry) {
	pts := b.pointList(e.arg(0), tf)
	if len(pts) == 0 {
		return
	}
	pn := e.arg(4).floats()
	base := uint32(len(g.positions))
	var tris []uint32
	for _, tri := range e.arg(3).list {
		idx, ok := indexed(tri.floats(), pn, len(pts))
		if !ok || len(idx) != 3 {
			b.warnf("#%d: invalid triangle index", e.id)
			return
		}
		tris = append(tris, idx...)
	}
	g.positions = append(g.positions, pts...)
	for _, i := range tris {
		g.indices = append(g.indices, base+i)
	}
}

func (b *builder) polygonalFaceSet(e *entity, tf transform, g *geometry) {
	pts := b.pointList(e.arg(0), tf)
	if len(pts) == 0 {
		return
	}
	pn := e.arg(3).floats()
	for _, ref := range e.arg(2).list {
		f := b.doc.getType(ref, "IFCINDEXEDPOLYGONALFACE", "IFCINDEXEDPOLYGONALFACEWITHVOIDS")
		if f == nil {
			continue
		}
		idx, ok := indexed(f.arg(0).floats(), pn, len(pts))
		if !ok {
			b.warnf("#%d: invalid polygon index", f.id)
			continue
		}
		loop := make([]math32.Vector3, len(idx))
		for i, j := range idx {
			loop[i] = pts[j]
		}
		g.polygon(loop)
	}
}

// profile returns the closed outline of a swept area in its own plane
func (b *builder) profile(v value) []math32.Vector3 {
	e := b.doc.get(v)
	if e == nil {
		return nil
	}
	switch e.typ {
	case "IFCRECTANGLEPROFILEDEF":
		xd, _ := e.arg(3).float()
		yd, _ := e.arg(4).float()
		hx, hy := float32(xd/2), float32(yd/2)
		pos := b.axisPlacement(e.arg(2))
		return []math32.Vector3{
			pos.point(math32.Vec3(-hx, -hy, 0)),
			pos.point(math32.Vec3(hx, -hy, 0)),
			pos.point(math32.Vec3(hx, hy, 0)),
			pos.point(math32.Vec3(-hx, hy, 0)),
		}
	case "IFCCIRCLEPROFILEDEF":
		r, _ := e.arg(3).float()
		pos := b.axisPlacement(e.arg(2))
		pts := make([]math32.Vector3, circleSegments)
		for i := range pts {
			a := 2 * math32.Pi * float32(i) / circleSegments
			pts[i] = pos.point(math32.Vec3(float32(r)*math32.Cos(a), float32(r)*math32.Sin(a), 0))
		}
		return pts
	case "IFCARBITRARYCLOSEDPROFILEDEF":
		pts := b.loop(e.arg(2), identity())
		if n := len(pts); n > 1 && pts[0] == pts[n-1] {
			pts = pts[:n-1]
		}
		return pts
	}
	b.unsupported(e.typ)
	return nil
}

func (b *builder) extrusion(e *entity, tf transform, g *geometry) {
	outline := b.profile(e.arg(0))
	if len(outline) < 3 {
		return
	}
	depth, _ := e.arg(3).float()
	dir := math32.Vec3(0, 0, 1)
	if d, ok := b.vector(e.arg(2)); ok && d.Length() > 0 {
		dir = d.Normal()
	}
	local := b.axisPlacement(e.arg(1)).within(tf)
	offset := dir.MulScalar(float32(depth))

	n := len(outline)
	bottom := make([]math32.Vector3, n)
	top := make([]math32.Vector3, n)
	for i, p := range outline {
		bottom[n-1-i] = local.point(p)
		top[i] = local.point(p.Add(offset))
	}
	g.polygon(bottom)
	g.polygon(top)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		g.polygon([]math32.Vector3{
			local.point(outline[i]),
			local.point(outline[j]),
			local.point(outline[j].Add(offset)),
			local.point(outline[i].Add(offset)),
		})
	}
}

// operator reads IfcCartesianTransformationOperator3D
func (b *builder) operator(v value) transform {
	t := identity()
	e := b.doc.get(v)
	if e == nil || !strings.HasPrefix(e.typ, "IFCCARTESIANTRANSFORMATIONOPERATOR3D") {
		return t
	}
	if x, ok := b.vector(e.arg(0)); ok && x.Length() > 0 {
		t.x = x.Normal()
	}
	if p, ok := b.vector(e.arg(2)); ok {
		t.origin = p
	}
	if z, ok := b.vector(e.arg(4)); ok && z.Length() > 0 {
		t.z = z.Normal()
	}
	t.y = t.z.Cross(t.x)
	if s, ok := e.arg(3).float(); ok && s > 0 {
		t = t.scaled(float32(s))
	}
	return t
}

func (b *builder) unsupported(what string) {
	if b.unknown[what] {
		return
	}
	b.unknown[what] = true
	b.warnf("unsupported geometry: %s", what)
}

// item appends the meshes produced by one representation item
func (b *builder) item(v value, tf transform, name string, inherited *model.Material, depth int, out *[]*model.Mesh) {
	e := b.doc.get(v)
	if e == nil || depth > maxPlacementDepth {
		return
	}
	mat := inherited
	if styled, ok := b.itemStyles[e.id]; ok {
		mat = styled
	}

	var g geometry
	switch e.typ {
	case "IFCFACETEDBREP", "IFCFACETEDBREPWITHVOIDS", "IFCADVANCEDBREP":
		b.shell(e.arg(0), tf, &g)
	case "IFCSHELLBASEDSURFACEMODEL", "IFCFACEBASEDSURFACEMODEL":
		for _, s := range e.arg(0).list {
			b.shell(s, tf, &g)
		}
	case "IFCTRIANGULATEDFACESET":
		b.triangulatedFaceSet(e, tf, &g)
	case "IFCPOLYGONALFACESET":
		b.polygonalFaceSet(e, tf, &g)
	case "IFCEXTRUDEDAREASOLID":
		b.extrusion(e, tf, &g)
	case "IFCBOOLEANCLIPPINGRESULT", "IFCBOOLEANRESULT":
		b.unsupported("boolean operations (first operand only)")
		b.item(e.arg(1), tf, name, mat, depth+1, out)
		return
	case "IFCMAPPEDITEM":
		source := b.doc.getType(e.arg(0), "IFCREPRESENTATIONMAP")
		if source == nil {
			return
		}
		mapped := b.axisPlacement(source.arg(0)).within(b.operator(e.arg(1)).within(tf))
		rep := b.doc.getType(source.arg(1), "IFCSHAPEREPRESENTATION")
		if rep == nil {
			return
		}
		for _, it := range rep.arg(3).list {
			b.item(it, mapped, name, mat, depth+1, out)
		}
		return
	default:
		b.unsupported(e.typ)
		return
	}

	if len(g.indices) == 0 {
		return
	}
	if mat == nil {
		mat = b.fallback
	}
	*out = append(*out, &model.Mesh{
		Name:      name,
		Positions: g.positions,
		Indices:   g.indices,
		Material:  mat,
	})
}

var skippedRepresentations = map[string]bool{
	"Axis":       true,
	"FootPrint":  true,
	"Box":        true,
	"Annotation": true,
	"Profile":    true,
}

// product meshes every body representation of an IfcProduct instance
func (b *builder) product(e *entity, out *[]*model.Mesh) {
	shape := b.doc.getType(e.arg(6), "IFCPRODUCTDEFINITIONSHAPE")
	if shape == nil {
		return
	}
	name := e.arg(2).text()
	if name == "" {
		name = fmt.Sprintf("%s#%d", e.typ, e.id)
	}
	tf := b.placement(e.arg(5), 0)

	for _, r := range shape.arg(2).list {
		rep := b.doc.getType(r, "IFCSHAPEREPRESENTATION")
		if rep == nil || skippedRepresentations[rep.arg(1).text()] {
			continue
		}
		for _, it := range rep.arg(3).list {
			b.item(it, tf, name, nil, 0, out)
		}
	}
}

func (b *builder) collectWarnings() []string {
	out := append([]string(nil), b.doc.warnings...)
	out = append(out, b.warnings...)
	sort.Strings(out)
	return out
}
