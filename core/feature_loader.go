// core/feature_loader.go
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// LoadReport summarises one decode pass for logging.
type LoadReport struct {
	FeaturesSeen    int
	FeaturesSkipped int
	Counts          FeatureCounts
}

// GeoJSON wire shapes; only the fields the classifier reads.
type featureCollectionJSON struct {
	Type     string        `json:"type"`
	Features []featureJSON `json:"features"`
}

type featureJSON struct {
	ID         json.RawMessage        `json:"id"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   *geometryJSON          `json:"geometry"`
}

type geometryJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Overpass exports tag features with properties.power.
var powerBuckets = map[string]string{
	"line":        "lines",
	"minor_line":  "minor_lines",
	"cable":       "cables",
	"substation":  "substations",
	"tower":       "towers",
	"pole":        "poles",
	"transformer": "transformers",
}

// Transmission-atlas exports use properties.type instead.
var typeBuckets = map[string]string{
	"Line":            "lines",
	"Cable":           "cables",
	"Tower":           "towers",
	"Substation_Icon": "substations",
	"Substation_Area": "substations",
	"Transformer":     "transformers",
}

// LoadGeoJSON reads a GeoJSON FeatureCollection from r and classifies its
// features into power buckets.
//
// It fails only on JSON syntax errors. Features with missing or malformed
// geometry, or lines with fewer than two coordinates, are skipped and
// counted in the report.
func LoadGeoJSON(r io.Reader) (*ClassifiedFeatures, *LoadReport, error) {
	var payload featureCollectionJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("LoadGeoJSON: decode failed: %w", err)
	}

	out := &ClassifiedFeatures{}
	report := &LoadReport{}

	for i, jsF := range payload.Features {
		report.FeaturesSeen++

		id := featureIDFromJSON(jsF.ID, i)
		power := stringProp(jsF.Properties, "power")
		bucket, ok := powerBuckets[power]
		if !ok {
			bucket, ok = typeBuckets[stringProp(jsF.Properties, "type")]
		}
		if !ok {
			bucket = "others"
		}

		feat, ok := decodeFeature(id, power, jsF)
		if !ok {
			report.FeaturesSkipped++
			continue
		}

		switch bucket {
		case "lines", "minor_lines", "cables":
			lf, isLine := feat.(LinearFeature)
			if !isLine || len(lf.Coordinates) < 2 {
				report.FeaturesSkipped++
				continue
			}
			switch bucket {
			case "lines":
				out.Lines = append(out.Lines, lf)
			case "minor_lines":
				out.MinorLines = append(out.MinorLines, lf)
			default:
				out.Cables = append(out.Cables, lf)
			}
		case "substations":
			out.Substations = append(out.Substations, feat)
		case "towers":
			out.Towers = append(out.Towers, feat)
		case "poles":
			out.Poles = append(out.Poles, feat)
		case "transformers":
			out.Transformers = append(out.Transformers, feat)
		default:
			out.Others = append(out.Others, feat)
		}
	}

	report.Counts = out.Counts()
	return out, report, nil
}

// LoadGeoJSONFile opens path and delegates to LoadGeoJSON.
func LoadGeoJSONFile(path string) (*ClassifiedFeatures, *LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadGeoJSONFile: open %q: %w", path, err)
	}
	defer f.Close()

	cf, report, err := LoadGeoJSON(f)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadGeoJSONFile: %q: %w", path, err)
	}
	return cf, report, nil
}

// LoadGeoJSONFiles decodes several files concurrently and merges them in
// argument order, so bus numbering downstream does not depend on which
// file finished first.
func LoadGeoJSONFiles(ctx context.Context, paths ...string) (*ClassifiedFeatures, *LoadReport, error) {
	parts := make([]*ClassifiedFeatures, len(paths))
	reports := make([]*LoadReport, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cf, rep, err := LoadGeoJSONFile(path)
			if err != nil {
				return err
			}
			parts[i] = cf
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	merged := &ClassifiedFeatures{}
	total := &LoadReport{}
	for i := range paths {
		merged.Merge(parts[i])
		total.FeaturesSeen += reports[i].FeaturesSeen
		total.FeaturesSkipped += reports[i].FeaturesSkipped
	}
	total.Counts = merged.Counts()
	return merged, total, nil
}

// decodeFeature maps one GeoJSON feature onto the Feature variants.
func decodeFeature(id, power string, jsF featureJSON) (Feature, bool) {
	if jsF.Geometry == nil || len(jsF.Geometry.Coordinates) == 0 {
		return nil, false
	}
	name := stringProp(jsF.Properties, "name")
	if name == "" {
		name = stringProp(jsF.Properties, "ref")
	}
	voltage := stringProp(jsF.Properties, "voltage")

	switch jsF.Geometry.Type {
	case string(GeometryPoint):
		var raw []float64
		if err := json.Unmarshal(jsF.Geometry.Coordinates, &raw); err != nil {
			return nil, false
		}
		pt, ok := lonLatFromSlice(raw)
		if !ok {
			return nil, false
		}
		return PointFeature{ID: id, Power: power, Name: name, Voltage: voltage, Coordinate: pt}, true

	case string(GeometryLineString):
		var raw [][]float64
		if err := json.Unmarshal(jsF.Geometry.Coordinates, &raw); err != nil {
			return nil, false
		}
		coords := make([]LonLat, 0, len(raw))
		for _, c := range raw {
			// Short tuples are dropped individually, like the builder does.
			if pt, ok := lonLatFromSlice(c); ok {
				coords = append(coords, pt)
			}
		}
		return LinearFeature{ID: id, Power: power, Name: name, Voltage: voltage, Coordinates: coords}, true

	case string(GeometryPolygon):
		var raw [][][]float64
		if err := json.Unmarshal(jsF.Geometry.Coordinates, &raw); err != nil {
			return nil, false
		}
		rings := make([][]LonLat, 0, len(raw))
		for _, ring := range raw {
			pts := make([]LonLat, 0, len(ring))
			for _, c := range ring {
				if pt, ok := lonLatFromSlice(c); ok {
					pts = append(pts, pt)
				}
			}
			rings = append(rings, pts)
		}
		return PolygonFeature{ID: id, Power: power, Name: name, Voltage: voltage, Rings: rings}, true
	}
	return nil, false
}

func lonLatFromSlice(c []float64) (LonLat, bool) {
	if len(c) < 2 {
		return LonLat{}, false
	}
	return LonLat{Lon: c[0], Lat: c[1]}, true
}

// featureIDFromJSON accepts string or numeric ids and falls back to the
// feature's position in the collection.
func featureIDFromJSON(raw json.RawMessage, pos int) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "feat_" + strconv.Itoa(pos)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "feat_" + strconv.Itoa(pos)
		}
		return s
	}
	return strings.TrimSpace(string(raw))
}

// stringProp returns a property as a string. Numeric tags (voltage is
// sometimes exported as a number) are formatted without exponent.
func stringProp(props map[string]interface{}, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
