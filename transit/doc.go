// Package transit supplies normalized arrival predictions and correlates
// them across stops.
//
// Two prediction sources are provided: an MBTA v3 JSON:API client and a
// GTFS-Realtime TripUpdates reader for agencies without a predictions API.
// Both honor the same contract: predictions for a stop, soonest first, only
// strictly positive ETAs, at most the requested limit. Correlate pairs an
// origin arrival with the destination arrival of the same vehicle trip;
// ETAs of unrelated vehicles are never paired.
package transit
