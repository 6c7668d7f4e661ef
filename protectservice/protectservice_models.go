package protectservice

import "time"

// ProtectConfig is the "unifi" section of the configuration file. Interval
// values are milliseconds, matching the controller's own epoch units.
type ProtectConfig struct {
	Controller           string   `mapstructure:"controller" json:"controller"`
	Username             string   `mapstructure:"username" json:"username"`
	Password             string   `mapstructure:"password" json:"-"`
	MotionInterval       int      `mapstructure:"motion_interval" json:"motion_interval"`
	MotionRepeatInterval int      `mapstructure:"motion_repeat_interval" json:"motion_repeat_interval"`
	EnhancedMotion       bool     `mapstructure:"enhanced_motion" json:"enhanced_motion"`
	EnhancedMotionScore  int      `mapstructure:"enhanced_motion_score" json:"enhanced_motion_score"`
	EnhancedClasses      []string `mapstructure:"enhanced_classes" json:"enhanced_classes"`
	SaveSnapshot         bool     `mapstructure:"save_snapshot" json:"save_snapshot"`
	Debug                bool     `mapstructure:"debug" json:"debug"`
	InitialBackoffDelay  int      `mapstructure:"initial_backoff_delay" json:"initial_backoff_delay"`
	MaxRetries           int      `mapstructure:"max_retries" json:"max_retries"`
	RequestTimeout       int      `mapstructure:"request_timeout" json:"request_timeout"`
}

func (c ProtectConfig) PollInterval() time.Duration {
	return time.Duration(c.MotionInterval) * time.Millisecond
}

func (c ProtectConfig) RepeatInterval() time.Duration {
	return time.Duration(c.MotionRepeatInterval) * time.Millisecond
}

func (c ProtectConfig) Backoff() time.Duration {
	return time.Duration(c.InitialBackoffDelay) * time.Millisecond
}

func (c ProtectConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// WorstCaseLatency is the longest a single retried call can take: every
// attempt times out and every backoff wait hits its cap.
func (c ProtectConfig) WorstCaseLatency() time.Duration {
	retries := max(c.MaxRetries, 0)
	waits := c.Backoff() * time.Duration((1<<retries)-1)
	return waits + c.Timeout()*time.Duration(retries+1)
}

// Session is a controller credential. It is never persisted.
type Session struct {
	Authorization string
	CreatedAt     time.Time
}

type Camera struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	IPAddress       string   `json:"ip"`
	MACAddress      string   `json:"mac"`
	Model           string   `json:"type"`
	FirmwareVersion string   `json:"firmware"`
	Streams         []Stream `json:"streams"`
}

// Stream is a playable RTSP channel. Camera.Streams is ordered by pixel area,
// so the last entry is the highest resolution.
type Stream struct {
	Name   string `json:"name"`
	Alias  string `json:"alias"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FPS    int    `json:"fps"`
}

func (s Stream) Area() int {
	return s.Width * s.Height
}

// MotionEvent is a correlated motion event. Camera is filled in by
// LatestPerCamera, never by decoding.
type MotionEvent struct {
	ID        string
	CameraID  string
	Score     int
	Timestamp time.Time
	Camera    *Camera
}

type rawBootstrap struct {
	Cameras *[]rawCamera `json:"cameras"`
}

type rawCamera struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Host            string       `json:"host"`
	Mac             string       `json:"mac"`
	Type            string       `json:"type"`
	FirmwareVersion string       `json:"firmwareVersion"`
	Channels        []rawChannel `json:"channels"`
}

type rawChannel struct {
	Name      string `json:"name"`
	RTSPAlias string `json:"rtspAlias"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FPS       int    `json:"fps"`
}

// rawEvent is the wire shape of /api/events. End is nil while the motion is
// still in progress.
type rawEvent struct {
	ID     string `json:"id"`
	Camera string `json:"camera"`
	Score  int    `json:"score"`
	Start  int64  `json:"start"`
	End    *int64 `json:"end"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
