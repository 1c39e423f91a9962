// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package bridge

import (
	"fmt"
	"strings"
	"time"
)

func statusTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/status"
}

func statusPayload(status string) []byte {
	return []byte(fmt.Sprintf(`{"status":%q,"timestamp":%q}`, status, time.Now().UTC().Format(time.RFC3339)))
}
