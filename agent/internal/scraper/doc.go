// Package scraper provides the adapters for each supported data source.
// Each adapter knows its source's URL scheme and payload shape, fetches the
// raw JSON through an httpclient.Client and hands it to the extract package
// with an explicit shape tag.
//
// Implemented scrapers: EcoWaste waste-bin dashboards (ecowaste.go, session
// token auth), Owlet street-lighting devices (owlet.go, mTLS client
// certificate) and Xemtec RFID readers (xemtec.go, basic auth).
// Factory: New(config.Source) returns the correct Scraper.
//
// Failure policy for one pass: an authentication failure aborts the pass,
// any other per-resource failure is logged and the resource skipped. Scrape
// returns the collected metrics together with the joined resource errors.
package scraper
