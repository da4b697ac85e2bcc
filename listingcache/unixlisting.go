package listingcache

import (
	"strconv"
	"strings"
)

// ParseUnixListing parses a `LIST` response in the classic Unix
// `ls -l`-style format every mainstream FTP server falls back to absent
// a `MLSD` reply, the format worker.Deps.ParseListing is wired to by
// default (§4.5.4's "treats server replies as opaque 3-digit codes plus
// free text" keeps this out of ftpproto/worker; it lives here because
// its only output is the ListingItem this package already owns).
// systemHint and pathType are accepted to satisfy the
// operation.SharedDeps.ParseListing signature; block-structured systems
// (MVS/VMS, §3.3) need a different parser entirely and are not handled
// here.
func ParseUnixListing(data []byte, _ string, _ int) ([]ListingItem, error) {
	lines := strings.Split(string(data), "\n")
	items := make([]ListingItem, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "total ") {
			continue
		}
		item, ok := parseUnixListingLine(line)
		if !ok {
			continue
		}
		if item.Name == "." || item.Name == ".." {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// parseUnixListingLine splits one `-rwxr-xr-x  1 user group  1234 Jan 02 03:04 name`
// style line into a ListingItem. The leading permission field's first
// character ('d', 'l', '-') is the only part this needs to parse
// reliably; everything between the link count and the name is skipped by
// field count rather than column position, since owner/group/size widths
// vary by server.
func parseUnixListingLine(line string) (ListingItem, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return ListingItem{}, false
	}

	perms := fields[0]
	var kind ItemKind
	switch perms[0] {
	case 'd':
		kind = KindDirectory
	case 'l':
		kind = KindLink
	default:
		kind = KindFile
	}

	size, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		size = SizeUnknown
	}

	// The name is whatever follows the fixed 8 leading fields (perms,
	// link count, owner, group, size, month, day, time/year); a symlink
	// additionally carries " -> target" which this engine has no use for
	// ahead of CopyResolveLink actually stat-ing the target.
	name := strings.Join(fields[8:], " ")
	if kind == KindLink {
		if i := strings.Index(name, " -> "); i >= 0 {
			name = name[:i]
		}
	}
	if name == "" {
		return ListingItem{}, false
	}

	return ListingItem{Name: name, Size: size, Kind: kind}, true
}
