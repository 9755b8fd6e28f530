package domain

import geojson "github.com/paulmach/go.geojson"

// Basemap constants for the European overview map.
const (
	BasemapStyle = "carto-positron"
	BasemapZoom  = 3.5
)

// BasemapCenter is the fixed map centre, roughly the middle of Europe.
var BasemapCenter = Geo{Lat: 47.5260, Lon: 5.2551}

// Basemap describes the tile style and viewport of the map.
type Basemap struct {
	Style  string  `json:"style"`
	Zoom   float64 `json:"zoom"`
	Center Geo     `json:"center"`
}

// Marker is one plotted protest.
type Marker struct {
	Geo       Geo    `json:"geo"`
	HoverText string `json:"hover_text"`
}

// MarkerStyle applies to every marker in a scene.
type MarkerStyle struct {
	Size      int    `json:"size"`
	Color     string `json:"color"`
	ShowScale bool   `json:"show_scale"`
	HoverInfo string `json:"hover_info"`
}

// Layout holds the figure dimensions in pixels.
type Layout struct {
	Height     int  `json:"height"`
	Width      int  `json:"width"`
	Margin     int  `json:"margin"`
	ShowLegend bool `json:"show_legend"`
}

// Scene is a complete, self-contained description of the map to display.
type Scene struct {
	Basemap     Basemap     `json:"basemap"`
	MarkerStyle MarkerStyle `json:"marker_style"`
	Layout      Layout      `json:"layout"`
	Markers     []Marker    `json:"markers"`
}

// Render builds a scene with one marker per record. The scene is rebuilt from
// scratch on every call; an empty subset still yields a valid basemap.
func Render(subset []Record) Scene {
	markers := make([]Marker, len(subset))
	for i, r := range subset {
		markers[i] = Marker{Geo: r.Geo, HoverText: r.Note}
	}
	return Scene{
		Basemap: Basemap{
			Style:  BasemapStyle,
			Zoom:   BasemapZoom,
			Center: BasemapCenter,
		},
		MarkerStyle: MarkerStyle{Size: 8, Color: "red", HoverInfo: "text"},
		Layout:      Layout{Height: 600, Width: 1200},
		Markers:     markers,
	}
}

// FeatureCollection encodes the markers as GeoJSON points with the hover
// text in the "note" property. GeoJSON orders coordinates lon, lat.
func (s Scene) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range s.Markers {
		f := geojson.NewPointFeature([]float64{m.Geo.Lon, m.Geo.Lat})
		f.SetProperty("note", m.HoverText)
		fc.AddFeature(f)
	}
	return fc
}
