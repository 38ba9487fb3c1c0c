package domain

import "time"

// Cell is one team: a tracker board plus the project-key prefix its issues
// carry. Cells are discovered from boards named with the configured prefix.
type Cell struct {
    Name      string
    BoardID   int64
    KeyPrefix string
}

type Sprint struct {
    ID    int64
    Name  string
    State string
}

// Member is one roster entry, with the profile bits capacity math needs.
type Member struct {
    Username        string
    DisplayName     string
    WorkHours       string
    TimezoneOffset  float64
}

type Webhook struct {
    ID        int64
    URL       string
    Active    bool
    CreatedAt time.Time
}
