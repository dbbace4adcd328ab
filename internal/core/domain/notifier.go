package domain

import "time"

// NotifierTarget is one social-media source watched for live/upload activity.
type NotifierTarget struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
	RoleID   RoleID `json:"role_id,omitempty"`
}

// Activity is one live/upload event observed on a target.
type Activity struct {
	Target     NotifierTarget
	Title      string
	URL        string
	ObservedAt time.Time
}

// Key identifies an activity for dedup purposes.
func (a *Activity) Key() string {
	return a.Target.Platform + "|" + a.URL
}
