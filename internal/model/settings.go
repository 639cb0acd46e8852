package model

import "fmt"

// SettingKey names one organization-wide setting.
type SettingKey string

const (
	SettingDirectoryIntroText  SettingKey = "directory_intro_text"
	SettingBrandLogo           SettingKey = "brand_logo"
	SettingBrandPrimaryColor   SettingKey = "brand_primary_color"
	SettingBrandName           SettingKey = "brand_name"
	SettingHomepageUserName    SettingKey = "homepage_user_name"
	SettingRegistrationEnabled SettingKey = "registration_enabled"
)

// BrandLogoObjectKey is both the blob key of the uploaded logo and the value
// stored under SettingBrandLogo while a logo is set.
const BrandLogoObjectKey = "brand/logo.png"

const defaultDirectoryIntroText = "👋 Welcome to the Hush Line user directory! " +
	"Here you'll find verified accounts and users who have chosen to be listed."

var settingDefaults = map[SettingKey]any{
	SettingDirectoryIntroText:  defaultDirectoryIntroText,
	SettingBrandLogo:           nil,
	SettingBrandPrimaryColor:   "#7d25c1",
	SettingBrandName:           "🤫 Hush Line",
	SettingHomepageUserName:    nil,
	SettingRegistrationEnabled: true,
}

// SettingKeys returns every known key.
func SettingKeys() []SettingKey {
	return []SettingKey{
		SettingDirectoryIntroText,
		SettingBrandLogo,
		SettingBrandPrimaryColor,
		SettingBrandName,
		SettingHomepageUserName,
		SettingRegistrationEnabled,
	}
}

func ParseSettingKey(s string) (SettingKey, error) {
	k := SettingKey(s)
	if _, ok := settingDefaults[k]; !ok {
		return "", fmt.Errorf("%w: invalid SettingKey %q", ErrInvalidValue, s)
	}
	return k, nil
}

// Default is the value reported for k when nothing has been stored. A nil
// default means the setting is unset.
func (k SettingKey) Default() any {
	v, ok := settingDefaults[k]
	if !ok {
		panic(unhandled("SettingKey", string(k)))
	}
	return v
}
