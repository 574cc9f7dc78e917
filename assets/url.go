// Package assets builds public URLs for sprite and portrait assets and maps
// request paths of this server back to the asset they denote.
package assets

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type of an asset.
type Kind int

const (
	PortraitSheet Kind = iota
	PortraitRecolorSheet
	Portrait
	PortraitFlipped
	SpriteAnimDataXML
	SpriteZip
	SpriteRecolorSheet
	SpriteAnim
	SpriteOffsets
	SpriteShadows
)

func (k Kind) String() string {
	switch k {
	case PortraitSheet:
		return "portrait_sheet"
	case PortraitRecolorSheet:
		return "portrait_recolor_sheet"
	case Portrait:
		return "portrait"
	case PortraitFlipped:
		return "portrait_flipped"
	case SpriteAnimDataXML:
		return "sprite_anim_data_xml"
	case SpriteZip:
		return "sprite_zip"
	case SpriteRecolorSheet:
		return "sprite_recolor_sheet"
	case SpriteAnim:
		return "sprite_anim"
	case SpriteOffsets:
		return "sprite_offsets"
	case SpriteShadows:
		return "sprite_shadows"
	default:
		return "unknown"
	}
}

// Asset identifies one asset of a form. Name is the emotion or action for
// kinds that have one and empty otherwise.
type Asset struct {
	Kind      Kind
	MonsterID int
	FormPath  []int
	Name      string
}

// Generated assets are served by this server below /assets; every other
// asset is a file of the upstream repository.
var generated = map[Kind]string{
	PortraitSheet:        "portrait_sheet.png",
	PortraitRecolorSheet: "portrait_recolor_sheet.png",
	SpriteZip:            "sprites.zip",
	SpriteRecolorSheet:   "sprite_recolor_sheet.png",
}

// URLBuilder renders asset URLs.
type URLBuilder struct {
	ServerURL string // Public base URL of this server
	AssetsURL string // Base URL of the raw upstream repository files
}

// NewURLBuilder creates a URLBuilder. Trailing slashes are ignored.
func NewURLBuilder(serverURL, assetsURL string) *URLBuilder {
	return &URLBuilder{
		ServerURL: strings.TrimSuffix(serverURL, "/"),
		AssetsURL: strings.TrimSuffix(assetsURL, "/"),
	}
}

// URL returns the public URL of a.
func (b *URLBuilder) URL(a Asset) string {
	dir := formDir(a.MonsterID, a.FormPath)
	if file, ok := generated[a.Kind]; ok {
		return fmt.Sprintf("%s/assets/%s/%s", b.ServerURL, dir, file)
	}
	switch a.Kind {
	case Portrait:
		return fmt.Sprintf("%s/portrait/%s/%s.png", b.AssetsURL, dir, upperFirst(a.Name))
	case PortraitFlipped:
		return fmt.Sprintf("%s/portrait/%s/%s^.png", b.AssetsURL, dir, upperFirst(a.Name))
	case SpriteAnimDataXML:
		return fmt.Sprintf("%s/sprite/%s/AnimData.xml", b.AssetsURL, dir)
	case SpriteAnim:
		return fmt.Sprintf("%s/sprite/%s/%s-Anim.png", b.AssetsURL, dir, upperFirst(a.Name))
	case SpriteOffsets:
		return fmt.Sprintf("%s/sprite/%s/%s-Offsets.png", b.AssetsURL, dir, upperFirst(a.Name))
	case SpriteShadows:
		return fmt.Sprintf("%s/sprite/%s/%s-Shadow.png", b.AssetsURL, dir, upperFirst(a.Name))
	}
	return ""
}

// Match parses a request path of one of the assets generated by this server,
// e.g. /assets/0025/0001/portrait_sheet.png. ok is false if path does not
// denote such an asset.
func Match(path string) (a Asset, ok bool) {
	rest, found := strings.CutPrefix(path, "/assets/")
	if !found {
		return Asset{}, false
	}
	segments := strings.Split(rest, "/")
	if len(segments) < 2 {
		return Asset{}, false
	}

	file := segments[len(segments)-1]
	kind, found := generatedKind(file)
	if !found {
		return Asset{}, false
	}

	ids := make([]int, 0, len(segments)-1)
	for _, s := range segments[:len(segments)-1] {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Asset{}, false
		}
		ids = append(ids, n)
	}

	a = Asset{Kind: kind, MonsterID: ids[0]}
	if len(ids) > 1 {
		a.FormPath = ids[1:]
	}
	return a, true
}

func generatedKind(file string) (Kind, bool) {
	for kind, name := range generated {
		if name == file {
			return kind, true
		}
	}
	return 0, false
}

func formDir(monsterID int, formPath []int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d", monsterID)
	for _, p := range formPath {
		fmt.Fprintf(&sb, "/%04d", p)
	}
	return sb.String()
}

// upperFirst capitalizes emotion and action names the way the upstream file
// names do.
func upperFirst(s string) string {
	if s == "teary-eyed" {
		return "Teary-Eyed"
	}
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
