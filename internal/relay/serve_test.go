package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandle_UnknownAction(t *testing.T) {
	resp := handle(NewMemoryPageStore(nil), request{ID: "1", Action: "explode"})
	assert.False(t, resp.Success)
	assert.Equal(t, "1", resp.ID)
	assert.Contains(t, resp.Error, "explode")
}

func TestScanUsers(t *testing.T) {
	dir := scanUsers(map[string]string{
		"mata_active_user":          "Zed@z.io",
		"mata_keys_a_b_com":         "{}",
		"mata_salt_a_b_com":         "s",
		"mata_keys_a_b_com_updated": "1700000000000",
		"mata_keys_x_mail_corp_org": "{}",
		"mata_keys_short":           "{}",
		"settings":                  "{}",
	})

	assert.Equal(t, []string{"Zed@z.io", "a@b.com", "x@mail.corp.org"}, dir.Users)
	assert.Equal(t, []string{"Zed_z_io", "a_b_com", "short", "x_mail_corp_org"}, dir.SanitizedUsers)
}

func TestCriticalItems(t *testing.T) {
	got := criticalItems(map[string]string{
		"mata_active_user":          "a@b.com",
		"mata_keys_a_b_com":         "{}",
		"mata_last_sync":            "1",
		"mata_keys_a_b_com_updated": "1",
	})
	assert.Equal(t, map[string]string{"mata_active_user": "a@b.com", "mata_keys_a_b_com": "{}"}, got)
}
