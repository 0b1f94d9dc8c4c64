// Package scraper fetches course catalog data from Stanford ExploreCourses.
//
// Department queries use the XML search view (view=xml-20120105) and are
// returned as catalog element trees. Requests carry a project User-Agent, are
// paced by a rate limiter, and honor the host's robots.txt unless disabled.
// The package can also list department codes from the ExploreCourses landing
// page, which is HTML and is parsed with goquery.
package scraper
