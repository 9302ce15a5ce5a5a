package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// SampleIFC is a small IFC4 file with one extruded wall placed at x=10
// and one red, half-transparent triangulated slab at the origin.
const SampleIFC = `ISO-10303-21;
HEADER;
FILE_DESCRIPTION(('ViewDefinition [ReferenceView]'),'2;1');
FILE_NAME('sample.ifc','2024-01-01T00:00:00',(''),(''),'','','');
FILE_SCHEMA(('IFC4'));
ENDSEC;
DATA;
#1=IFCSIUNIT(*,.LENGTHUNIT.,$,.METRE.);
#10=IFCCARTESIANPOINT((0.,0.,0.));
#11=IFCDIRECTION((0.,0.,1.));
#12=IFCDIRECTION((1.,0.,0.));
#13=IFCAXIS2PLACEMENT3D(#10,#11,#12);
#14=IFCLOCALPLACEMENT($,#13);
#20=IFCCARTESIANPOINT((10.,0.,0.));
#21=IFCAXIS2PLACEMENT3D(#20,$,$);
#22=IFCLOCALPLACEMENT(#14,#21);
#30=IFCRECTANGLEPROFILEDEF(.AREA.,'Wall profile',$,4.,0.2);
#31=IFCEXTRUDEDAREASOLID(#30,$,#11,3.);
#32=IFCSHAPEREPRESENTATION($,'Body','SweptSolid',(#31));
#33=IFCPRODUCTDEFINITIONSHAPE($,$,(#32));
#34=IFCWALL('0001',$,'Wall ''A''',$,$,#22,#33,$,.STANDARD.);
#40=IFCCARTESIANPOINTLIST3D(((0.,0.,0.),(1.,0.,0.),(0.,1.,0.)));
#41=IFCTRIANGULATEDFACESET(#40,$,.T.,((1,2,3)),$);
#42=IFCCOLOURRGB($,1.,0.,0.);
#43=IFCSURFACESTYLERENDERING(#42,0.5,$,$,$,$,$,$,.NOTDEFINED.);
#44=IFCSURFACESTYLE('Red',.BOTH.,(#43));
#45=IFCSTYLEDITEM(#41,(#44),$);
#46=IFCSHAPEREPRESENTATION($,'Body','Tessellation',(#41));
#47=IFCPRODUCTDEFINITIONSHAPE($,$,(#46));
#48=IFCSLAB('0002',$,'Slab',$,$,#14,#47,$,.FLOOR.);
/* axis curves are not meshed */
#50=IFCPOLYLINE((#10,#20));
#51=IFCSHAPEREPRESENTATION($,'Axis','Curve2D',(#50));
ENDSEC;
END-ISO-10303-21;
`

// TriangleBin is the companion buffer for TriangleGLTF: three float32 VEC3
// positions followed by three uint16 indices, padded to 44 bytes.
func TriangleBin() []byte {
	var buf bytes.Buffer
	for _, f := range []float32{0, 0, 0, 1, 0, 0, 0, 1, 0} {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(f))
	}
	for _, i := range []uint16{0, 1, 2} {
		_ = binary.Write(&buf, binary.LittleEndian, i)
	}
	buf.Write([]byte{0, 0})
	return buf.Bytes()
}

func triangleJSON(bufferURI string, tx float64) string {
	uri := ""
	if bufferURI != "" {
		uri = fmt.Sprintf(`"uri":%q,`, bufferURI)
	}
	return fmt.Sprintf(`{"asset":{"version":"2.0"},
"scene":0,"scenes":[{"nodes":[0]}],
"nodes":[{"mesh":0,"translation":[%g,0,0]}],
"meshes":[{"name":"Duct","primitives":[{"attributes":{"POSITION":0},"indices":1,"material":0}]}],
"materials":[{"name":"Steel","pbrMetallicRoughness":{"baseColorFactor":[0.5,0.5,0.5,1]}}],
"buffers":[{%s"byteLength":44}],
"bufferViews":[{"buffer":0,"byteOffset":0,"byteLength":36},{"buffer":0,"byteOffset":36,"byteLength":6}],
"accessors":[{"bufferView":0,"componentType":5126,"count":3,"type":"VEC3","min":[0,0,0],"max":[1,1,0]},
{"bufferView":1,"componentType":5123,"count":3,"type":"SCALAR"}]}`, tx, uri)
}

// TriangleGLTF is a one-triangle glTF document translated by tx along x
// whose buffer lives in the external file bufferURI.
func TriangleGLTF(bufferURI string, tx float64) []byte {
	return []byte(triangleJSON(bufferURI, tx))
}

// TriangleGLB packs the same triangle into a binary container
func TriangleGLB(tx float64) []byte {
	jsonChunk := []byte(triangleJSON("", tx))
	for len(jsonChunk)%4 != 0 {
		jsonChunk = append(jsonChunk, ' ')
	}
	bin := TriangleBin()

	var buf bytes.Buffer
	total := 12 + 8 + len(jsonChunk) + 8 + len(bin)
	buf.WriteString("glTF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(total))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(jsonChunk)))
	buf.WriteString("JSON")
	buf.Write(jsonChunk)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(bin)))
	buf.WriteString("BIN\x00")
	buf.Write(bin)
	return buf.Bytes()
}
