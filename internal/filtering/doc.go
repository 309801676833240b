// Package filtering selects which plugin definitions the daemon runs.
//
// Definitions are matched by name with glob patterns and by tag with exact
// string matching. Both filters share the same precedence:
//
//  1. a matching exclude rule drops the plugin
//  2. a matching include rule keeps it
//  3. include rules that do not match drop it
//  4. with no include rules the plugin is kept
//
// A plugin must pass both the name and the tag filter. Name patterns use
// github.com/gobwas/glob with no separators, so "*" also matches dots:
//
//	filter:
//	  names:
//	    include: ["haproxy*", "nginx-*"]
//	    exclude: ["*-canary"]
//	  tags:
//	    exclude: ["disabled"]
package filtering
