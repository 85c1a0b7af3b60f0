package core

// GeometryType names the geometry carried by a Feature.
type GeometryType string

const (
	GeometryLineString GeometryType = "LineString"
	GeometryPoint      GeometryType = "Point"
	GeometryPolygon    GeometryType = "Polygon"
)

// Feature is one classified geographic record. It is implemented by
// LinearFeature, PointFeature and PolygonFeature; the set is closed.
type Feature interface {
	FeatureID() string
	Geometry() GeometryType
	VoltageTag() string

	// Representative returns the coordinate used to attach the feature
	// to a bus, or ok=false when the geometry is empty.
	Representative() (LonLat, bool)

	isFeature()
}

// LinearFeature is a line, minor line or cable: an ordered coordinate
// sequence with a voltage tag.
type LinearFeature struct {
	ID          string
	Power       string
	Name        string
	Voltage     string
	Coordinates []LonLat
}

func (f LinearFeature) FeatureID() string      { return f.ID }
func (f LinearFeature) Geometry() GeometryType { return GeometryLineString }
func (f LinearFeature) VoltageTag() string     { return f.Voltage }
func (LinearFeature) isFeature()               {}

func (f LinearFeature) Representative() (LonLat, bool) {
	if len(f.Coordinates) == 0 {
		return LonLat{}, false
	}
	return f.Coordinates[0], true
}

// PointFeature is a tower, pole, substation icon, etc.
type PointFeature struct {
	ID         string
	Power      string
	Name       string
	Voltage    string
	Coordinate LonLat
}

func (f PointFeature) FeatureID() string              { return f.ID }
func (f PointFeature) Geometry() GeometryType         { return GeometryPoint }
func (f PointFeature) VoltageTag() string             { return f.Voltage }
func (f PointFeature) Representative() (LonLat, bool) { return f.Coordinate, true }
func (PointFeature) isFeature()                       {}

// PolygonFeature is an area such as a substation compound. Only the
// outer ring (Rings[0]) is meaningful here.
type PolygonFeature struct {
	ID      string
	Power   string
	Name    string
	Voltage string
	Rings   [][]LonLat
}

func (f PolygonFeature) FeatureID() string      { return f.ID }
func (f PolygonFeature) Geometry() GeometryType { return GeometryPolygon }
func (f PolygonFeature) VoltageTag() string     { return f.Voltage }
func (PolygonFeature) isFeature()               {}

// Representative returns the first point of the outer ring.
func (f PolygonFeature) Representative() (LonLat, bool) {
	if len(f.Rings) == 0 || len(f.Rings[0]) == 0 {
		return LonLat{}, false
	}
	return f.Rings[0][0], true
}

// ClassifiedFeatures holds features bucketed by power category. Only the
// linear buckets and Substations feed the builder; the remaining buckets
// are carried for callers that render them.
type ClassifiedFeatures struct {
	Lines        []LinearFeature
	MinorLines   []LinearFeature
	Cables       []LinearFeature
	Substations  []Feature
	Towers       []Feature
	Poles        []Feature
	Transformers []Feature
	Others       []Feature
}

// FeatureCounts summarises bucket sizes.
type FeatureCounts struct {
	Lines        int
	MinorLines   int
	Cables       int
	Substations  int
	Towers       int
	Poles        int
	Transformers int
	Others       int
}

// Total returns the number of classified features.
func (c FeatureCounts) Total() int {
	return c.Lines + c.MinorLines + c.Cables + c.Substations +
		c.Towers + c.Poles + c.Transformers + c.Others
}

// Counts returns the size of every bucket.
func (cf *ClassifiedFeatures) Counts() FeatureCounts {
	if cf == nil {
		return FeatureCounts{}
	}
	return FeatureCounts{
		Lines:        len(cf.Lines),
		MinorLines:   len(cf.MinorLines),
		Cables:       len(cf.Cables),
		Substations:  len(cf.Substations),
		Towers:       len(cf.Towers),
		Poles:        len(cf.Poles),
		Transformers: len(cf.Transformers),
		Others:       len(cf.Others),
	}
}

// Merge appends every bucket of other onto cf, preserving order.
func (cf *ClassifiedFeatures) Merge(other *ClassifiedFeatures) {
	if cf == nil || other == nil {
		return
	}
	cf.Lines = append(cf.Lines, other.Lines...)
	cf.MinorLines = append(cf.MinorLines, other.MinorLines...)
	cf.Cables = append(cf.Cables, other.Cables...)
	cf.Substations = append(cf.Substations, other.Substations...)
	cf.Towers = append(cf.Towers, other.Towers...)
	cf.Poles = append(cf.Poles, other.Poles...)
	cf.Transformers = append(cf.Transformers, other.Transformers...)
	cf.Others = append(cf.Others, other.Others...)
}
