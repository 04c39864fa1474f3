package services

import (
	"fmt"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/cloudinary/cloudinary-go/v2"
)

const avatarTransformation = "c_fill,g_face,h_128,w_128,r_max"

// Avatars resolves avatar seeds to delivery URLs of the preset images in
// Cloudinary. A nil or unconfigured Avatars resolves nothing and the client
// falls back to its built-in images.
type Avatars struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewAvatars(cloudName, apiKey, apiSecret, folder string) (*Avatars, error) {
	if cloudName == "" {
		return &Avatars{}, nil
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &Avatars{cld: cld, folder: folder}, nil
}

// URL returns the image URL for seed, or "" when it cannot be built.
func (a *Avatars) URL(seed int) string {
	if a == nil || a.cld == nil || seed < models.MinAvatarSeed || seed > models.MaxAvatarSeed {
		return ""
	}
	img, err := a.cld.Image(fmt.Sprintf("%s/avatar_%d", a.folder, seed))
	if err != nil {
		return ""
	}
	img.Transformation = avatarTransformation
	url, err := img.String()
	if err != nil {
		return ""
	}
	return url
}

func (a *Avatars) DecorateUser(u *models.User) {
	if u != nil {
		u.AvatarURL = a.URL(u.AvatarSeed)
	}
}

func (a *Avatars) DecorateSummaries(list []models.UserSummary) {
	for i := range list {
		list[i].AvatarURL = a.URL(list[i].AvatarSeed)
	}
}

func (a *Avatars) DecorateChats(chats []models.Chat) {
	for i := range chats {
		chats[i].Peer.AvatarURL = a.URL(chats[i].Peer.AvatarSeed)
	}
}
