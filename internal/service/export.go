package service

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jamesnetherton/m3u"

	"github.com/voyagen/tvdeck/internal/models"
)

// ExportOptions controls which servers are written.
type ExportOptions struct {
	// SkipBroken leaves out servers whose last check was broken.
	SkipBroken bool
	// PrimaryOnly writes only the highest-priority eligible server.
	PrimaryOnly bool
}

// BuildPlaylist converts active streams into M3U tracks, one per server.
// The stream title is written only as the display name, which may contain
// commas; tvg-name is omitted.
func BuildPlaylist(streams []models.Stream, opts ExportOptions) m3u.Playlist {
	p := m3u.Playlist{Tracks: []m3u.Track{}}
	for _, st := range streams {
		if !st.Active {
			continue
		}
		for _, srv := range st.Servers {
			if opts.SkipBroken && srv.LastStatus != nil && *srv.LastStatus == models.StatusBroken {
				continue
			}
			p.Tracks = append(p.Tracks, m3u.Track{
				Name:   st.Title,
				Length: -1,
				URI:    srv.URL,
				Tags:   streamTags(st),
			})
			if opts.PrimaryOnly {
				break
			}
		}
	}
	return p
}

func streamTags(st models.Stream) []m3u.Tag {
	var tags []m3u.Tag
	add := func(name string, v *string) {
		if v != nil && *v != "" {
			tags = append(tags, m3u.Tag{Name: name, Value: *v})
		}
	}
	add("tvg-id", st.ChannelID)
	add("tvg-logo", st.Logo)
	add("group-title", st.Category)
	return tags
}

// WritePlaylist writes p in extended M3U form.
func WritePlaylist(w io.Writer, p m3u.Playlist) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("#EXTM3U\n"); err != nil {
		return err
	}
	for _, t := range p.Tracks {
		var b strings.Builder
		fmt.Fprintf(&b, "#EXTINF:%d", t.Length)
		for _, tag := range t.Tags {
			fmt.Fprintf(&b, ` %s="%s"`, tag.Name, sanitizeAttr(tag.Value))
		}
		fmt.Fprintf(&b, ",%s\n%s\n", sanitizeLine(t.Name), sanitizeLine(t.URI))
		if _, err := bw.WriteString(b.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// sanitizeAttr keeps a value inside its double quotes on one line. Commas
// are replaced too: readers split an #EXTINF line at its first comma.
func sanitizeAttr(v string) string {
	return strings.NewReplacer(`"`, "'", ",", ";").Replace(sanitizeLine(v))
}

func sanitizeLine(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
