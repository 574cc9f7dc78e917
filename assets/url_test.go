package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	b := NewURLBuilder("https://spriteserver.example/", "https://raw.example/SpriteCollab/master")

	tests := []struct {
		name  string
		asset Asset
		want  string
	}{
		{"portrait sheet", Asset{Kind: PortraitSheet, MonsterID: 25}, "https://spriteserver.example/assets/0025/portrait_sheet.png"},
		{"portrait recolor sheet of form", Asset{Kind: PortraitRecolorSheet, MonsterID: 25, FormPath: []int{1, 2}}, "https://spriteserver.example/assets/0025/0001/0002/portrait_recolor_sheet.png"},
		{"sprite zip", Asset{Kind: SpriteZip, MonsterID: 1, FormPath: []int{0, 1}}, "https://spriteserver.example/assets/0001/0000/0001/sprites.zip"},
		{"sprite recolor sheet", Asset{Kind: SpriteRecolorSheet, MonsterID: 150}, "https://spriteserver.example/assets/0150/sprite_recolor_sheet.png"},
		{"portrait", Asset{Kind: Portrait, MonsterID: 25, Name: "happy"}, "https://raw.example/SpriteCollab/master/portrait/0025/Happy.png"},
		{"portrait teary-eyed", Asset{Kind: Portrait, MonsterID: 25, Name: "teary-eyed"}, "https://raw.example/SpriteCollab/master/portrait/0025/Teary-Eyed.png"},
		{"portrait flipped", Asset{Kind: PortraitFlipped, MonsterID: 25, FormPath: []int{1}, Name: "sad"}, "https://raw.example/SpriteCollab/master/portrait/0025/0001/Sad^.png"},
		{"anim data", Asset{Kind: SpriteAnimDataXML, MonsterID: 7}, "https://raw.example/SpriteCollab/master/sprite/0007/AnimData.xml"},
		{"anim", Asset{Kind: SpriteAnim, MonsterID: 7, Name: "walk"}, "https://raw.example/SpriteCollab/master/sprite/0007/Walk-Anim.png"},
		{"offsets", Asset{Kind: SpriteOffsets, MonsterID: 7, Name: "Idle"}, "https://raw.example/SpriteCollab/master/sprite/0007/Idle-Offsets.png"},
		{"shadows", Asset{Kind: SpriteShadows, MonsterID: 7, FormPath: []int{3}, Name: "attack"}, "https://raw.example/SpriteCollab/master/sprite/0007/0003/Attack-Shadow.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.URL(tt.asset))
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		path   string
		want   Asset
		wantOK bool
	}{
		{"/assets/0025/portrait_sheet.png", Asset{Kind: PortraitSheet, MonsterID: 25}, true},
		{"/assets/25/0001/portrait_recolor_sheet.png", Asset{Kind: PortraitRecolorSheet, MonsterID: 25, FormPath: []int{1}}, true},
		{"/assets/0001/0000/0001/sprites.zip", Asset{Kind: SpriteZip, MonsterID: 1, FormPath: []int{0, 1}}, true},
		{"/assets/0150/sprite_recolor_sheet.png", Asset{Kind: SpriteRecolorSheet, MonsterID: 150}, true},
		{"/assets/0025/abc/sprites.zip", Asset{}, false},
		{"/assets/pikachu/sprites.zip", Asset{}, false},
		{"/assets/0025/Happy.png", Asset{}, false},
		{"/assets/sprites.zip", Asset{}, false},
		{"/portrait/0025/Happy.png", Asset{}, false},
		{"/assets/0025//sprites.zip", Asset{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Match(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchRoundTrip(t *testing.T) {
	b := NewURLBuilder("", "")
	for kind := range generated {
		a := Asset{Kind: kind, MonsterID: 493, FormPath: []int{2, 1}}
		got, ok := Match(b.URL(a))
		assert.True(t, ok, kind.String())
		assert.Equal(t, a, got)
	}
}
