package store

const insertAlertQuery = `
insert into alerts (
	identifier,
	sender,
	sent,
	status,
	msgtype,
	source,
	scope,
	restriction,
	note
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
returning id
`

const insertAddressQuery = `insert into alert_addresses (alert_id, address) values ($1, $2)`

const insertCodeQuery = `insert into alert_codes (alert_id, code) values ($1, $2)`

const insertReferenceQuery = `
insert into alert_references (alert_id, sender, identifier, sent)
values ($1, $2, $3, $4)
`

const insertIncidentQuery = `insert into alert_incidents (alert_id, incident) values ($1, $2)`

const insertInfoQuery = `
insert into alert_info (
	alert_id,
	language,
	event,
	urgency,
	severity,
	certainty,
	audience,
	effective,
	onset,
	expires,
	sender_name,
	headline,
	description,
	instruction,
	web,
	contact
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
returning id
`

const insertCategoryQuery = `
insert into alert_info_categories (alertinfo_id, category) values ($1, $2)
`

const insertResponseTypeQuery = `
insert into alert_info_response_types (alertinfo_id, responsetype) values ($1, $2)
`

const insertEventCodeQuery = `
insert into alert_info_event_codes (alertinfo_id, value_name, value) values ($1, $2, $3)
`

const insertParameterQuery = `
insert into alert_info_parameters (alertinfo_id, value_name, value) values ($1, $2, $3)
`

const insertResourceQuery = `
insert into alert_info_resources (
	alertinfo_id,
	resource_description,
	mime_type,
	size,
	uri,
	deref_uri,
	digest
) values ($1, $2, $3, $4, $5, $6, $7)
`

const insertAreaQuery = `
insert into areas (alertinfo_id, area_description, altitude, ceiling)
values ($1, $2, $3, $4)
returning id
`

const insertGeocodeQuery = `
insert into area_geocodes (area_id, value_name, value) values ($1, $2, $3)
`

const insertPolygonQuery = `
insert into area_polygons (area_id, kind, geohash, geom)
values ($1, $2, $3, ST_GeogFromText($4))
`

const countAlertsQuery = `select count(*) from alerts`
