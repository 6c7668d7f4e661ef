package detectorservice

// DetectorConfig is the "detector" section of the configuration file.
type DetectorConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	HealthEndpoint string `mapstructure:"health_endpoint"`
	HealthService  string `mapstructure:"health_service"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Debug          bool   `mapstructure:"debug"`
}

// Detection is one labelled object found in a snapshot. Confidence is 0..1.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Box is a bounding box in pixels, origin top left.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Score is the confidence as a rounded 0..100 percentage.
func (d Detection) Score() int {
	return int(d.Confidence*100 + 0.5)
}

type detectResponse struct {
	Detections      []wireDetection `json:"detections"`
	InferenceTimeMs float64         `json:"inference_time_ms"`
}

// wireDetection mirrors the COCO-SSD result shape: bbox is [x, y, w, h].
type wireDetection struct {
	Class string    `json:"class"`
	Score float64   `json:"score"`
	BBox  []float64 `json:"bbox"`
}
